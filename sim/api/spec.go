package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/legisim/legisim/sim"
	"github.com/legisim/legisim/sim/vector"
)

// Version of the served API.
const Version = "0.1.0"

func (s *Server) handleSpec(c *gin.Context) {
	c.JSON(http.StatusOK, openAPI(s.System()))
}

// openAPI describes the routes and, per entity, the variables a situation
// may carry.
func openAPI(system *sim.TaxBenefitSystem) gin.H {
	schemas := gin.H{}
	situation := gin.H{}
	for _, e := range system.Entities() {
		props := map[string]any{}
		for _, v := range system.Variables() {
			if v.Entity.Key == e.Key {
				props[v.Name] = variableSchema(v)
			}
		}
		if !e.IsPerson {
			for _, r := range e.Roles {
				key := r.Key
				if r.Plural != "" {
					key = r.Plural
				}
				props[key] = gin.H{"type": "array", "items": gin.H{"type": "string"}}
			}
		}
		name := schemaName(e.Key)
		schemas[name] = gin.H{"type": "object", "properties": props}
		situation[e.Plural] = gin.H{
			"type":                 "object",
			"additionalProperties": gin.H{"$ref": "#/components/schemas/" + name},
		}
	}
	schemas["SituationInput"] = gin.H{"type": "object", "properties": situation}

	ref := gin.H{"$ref": "#/components/schemas/SituationInput"}
	body := gin.H{"required": true, "content": gin.H{"application/json": gin.H{"schema": ref}}}
	errorResponse := gin.H{"description": "Error payload", "content": gin.H{"application/json": gin.H{"schema": gin.H{
		"type":       "object",
		"properties": gin.H{"error": gin.H{}},
	}}}}
	get := func(summary string) gin.H {
		return gin.H{"get": gin.H{"summary": summary, "responses": gin.H{"200": gin.H{"description": "OK"}, "404": errorResponse}}}
	}
	post := func(summary string) gin.H {
		return gin.H{"post": gin.H{
			"summary":     summary,
			"requestBody": body,
			"responses": gin.H{
				"200": gin.H{"description": "OK", "content": gin.H{"application/json": gin.H{"schema": ref}}},
				"400": errorResponse,
				"404": errorResponse,
				"500": errorResponse,
			},
		}}
	}
	return gin.H{
		"openapi": "3.0.0",
		"info":    gin.H{"title": system.Name, "version": Version},
		"paths": gin.H{
			"/calculate":        post("Fill the null values of a situation"),
			"/trace":            post("Calculate and return the computation trace"),
			"/parameters":       get("List the parameters"),
			"/parameter/{path}": get("Describe a parameter"),
			"/variables":        get("List the variables"),
			"/variable/{name}":  get("Describe a variable"),
			"/entities":         get("Describe the entities and their roles"),
		},
		"components": gin.H{"schemas": schemas},
	}
}

func variableSchema(v *sim.Variable) gin.H {
	// Values are either a scalar or a map of period → scalar.
	scalar := gin.H{"description": v.Label}
	switch v.ValueType {
	case vector.Float:
		scalar["type"] = "number"
	case vector.Int:
		scalar["type"] = "integer"
	case vector.Bool:
		scalar["type"] = "boolean"
	case vector.Date:
		scalar["type"], scalar["format"] = "string", "date"
	case vector.Enum:
		scalar["type"], scalar["enum"] = "string", v.Enum.Items()
	default:
		scalar["type"] = "string"
	}
	scalar["nullable"] = true
	return gin.H{"oneOf": []any{scalar, gin.H{"type": "object", "additionalProperties": scalar}}}
}

// schemaName turns an entity key into a schema name: "household" → "Household".
func schemaName(key string) string {
	parts := strings.Split(key, "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, "")
}
