package printing

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/comanda-pos/api/internal/ticket"
)

// Job is one rendered ticket on its way to paper.
type Job struct {
	OrderID int64
	Name    string // spool job name
	Raw     []byte // ESC/POS payload
	Plain   string // plain-text fallback rendering
}

// Path is one way of getting a job onto paper. Paths are tried in order.
type Path struct {
	Name string
	Send func(ctx context.Context, job Job) error
}

// Outcome reports what Dispatch did. Printing failures never become errors:
// an order is accepted whether or not its comanda made it to paper.
type Outcome struct {
	Printed   bool
	Path      string // name of the path that succeeded
	AuditFile string
}

// Dispatcher fans a ticket out to a chain of print paths, always writing a
// plain-text audit copy first.
type Dispatcher struct {
	auditDir string
	paths    []Path
}

// NewDispatcher creates a Dispatcher writing audit copies under auditDir.
func NewDispatcher(auditDir string, paths ...Path) *Dispatcher {
	return &Dispatcher{auditDir: auditDir, paths: paths}
}

// Dispatch writes the audit copy, then walks the path chain until one
// succeeds. Every failure is logged; none is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, t ticket.Ticket, rendered []byte) Outcome {
	job := Job{
		OrderID: t.OrderID,
		Name:    fmt.Sprintf("comanda_%s", t.OrderNumber),
		Raw:     rendered,
		Plain:   ticket.PlainText(t),
	}

	var outcome Outcome
	outcome.AuditFile = d.writeAudit(job)

	for _, p := range d.paths {
		if err := p.Send(ctx, job); err != nil {
			log.Printf("ERROR: print path %s failed for order %d: %v", p.Name, job.OrderID, err)
			continue
		}
		outcome.Printed = true
		outcome.Path = p.Name
		return outcome
	}

	if len(d.paths) > 0 {
		log.Printf("ERROR: all print paths failed for order %d, audit copy at %s", job.OrderID, outcome.AuditFile)
	}
	return outcome
}

// writeAudit stores the plain-text copy named by order id. The audit copy is
// written before any print attempt so a spool crash still leaves a record.
func (d *Dispatcher) writeAudit(job Job) string {
	if err := os.MkdirAll(d.auditDir, 0o755); err != nil {
		log.Printf("ERROR: create audit dir: %v", err)
		return ""
	}
	path := filepath.Join(d.auditDir, fmt.Sprintf("comanda_%d.txt", job.OrderID))
	if err := os.WriteFile(path, []byte(job.Plain), 0o644); err != nil {
		log.Printf("ERROR: write audit copy: %v", err)
		return ""
	}
	return path
}
