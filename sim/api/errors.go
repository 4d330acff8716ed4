package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/legisim/legisim/sim"
)

// badRequest lists the error kinds caused by the request itself.
var badRequest = []error{
	sim.ErrSituationParse,
	sim.ErrParameterNotActive,
	sim.ErrInvalidPeriodFormat,
	sim.ErrIncompatiblePeriod,
	sim.ErrPeriodMismatch,
	sim.ErrLengthMismatch,
	sim.ErrTypeMismatch,
	sim.ErrUnknownPerson,
	sim.ErrDuplicatedPerson,
	sim.ErrInvalidRole,
	sim.ErrTooManyPersonsInRole,
	sim.ErrSpiralDetected,
}

// abort answers err with its status: 400 for invalid situations and
// requests, 404 for unknown variables and parameters, 500 otherwise.
// Situation errors keep their per-path messages, and answer 404 when one
// of them names an unknown variable.
func abort(c *gin.Context, err error) {
	var serr *sim.SituationError
	if errors.As(err, &serr) {
		code := http.StatusBadRequest
		if errors.Is(serr, sim.ErrVariableNotFound) {
			code = http.StatusNotFound
		}
		c.AbortWithStatusJSON(code, gin.H{"error": serr.Errors})
		return
	}
	code := statusCode(err)
	if code == http.StatusInternalServerError {
		logrus.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}

func statusCode(err error) int {
	if errors.Is(err, sim.ErrVariableNotFound) || errors.Is(err, sim.ErrParameterNotFound) {
		return http.StatusNotFound
	}
	for _, kind := range badRequest {
		if errors.Is(err, kind) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}
