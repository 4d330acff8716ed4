package spill

import (
	"fmt"

	"github.com/prometheus/procfs"
)

// Probe reports the fraction of physical memory used by the process.
type Probe interface {
	Occupation() (float64, error)
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func() (float64, error)

func (f ProbeFunc) Occupation() (float64, error) { return f() }

// ProcProbe reads the resident set size and MemTotal from /proc.
type ProcProbe struct {
	fs procfs.FS
}

// NewProcProbe opens the default /proc mount. It fails on systems without
// procfs.
func NewProcProbe() (*ProcProbe, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("open procfs: %w", err)
	}
	return &ProcProbe{fs: fs}, nil
}

// ResidentBytes is the resident set size of the current process.
func (p *ProcProbe) ResidentBytes() (uint64, error) {
	self, err := p.fs.Self()
	if err != nil {
		return 0, err
	}
	stat, err := self.Stat()
	if err != nil {
		return 0, err
	}
	return uint64(stat.ResidentMemory()), nil
}

// Occupation is RSS / MemTotal.
func (p *ProcProbe) Occupation() (float64, error) {
	rss, err := p.ResidentBytes()
	if err != nil {
		return 0, err
	}
	info, err := p.fs.Meminfo()
	if err != nil {
		return 0, err
	}
	if info.MemTotal == nil || *info.MemTotal == 0 {
		return 0, fmt.Errorf("meminfo: MemTotal unavailable")
	}
	return float64(rss) / float64(*info.MemTotal*1024), nil
}
