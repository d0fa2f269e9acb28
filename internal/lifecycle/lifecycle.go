// Package lifecycle orchestrates planning, creation and teardown of a stack.
//
// A Stack moves through
//
//	UNINITIALIZED → PLANNING → PLANNED → APPLYING → APPLIED → DESTROYING → DESTROYED
//
// with FAILED reachable from PLANNING, APPLYING and DESTROYING. Apply halts
// at the first failing resource and leaves everything created so far in
// place. Destroy deletes in the exact reverse of the order resources were
// created and keeps going past failures; a stack whose destroy failed stays
// FAILED with only the undeleted resources, so destroy can be run again.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/lex00/wetwire-site-go/internal/metrics"
	"github.com/lex00/wetwire-site-go/internal/plan"
	"github.com/lex00/wetwire-site-go/internal/provision"
	"github.com/lex00/wetwire-site-go/internal/stackerr"
	"github.com/lex00/wetwire-site-go/resource"
)

// State is a lifecycle phase.
type State string

const (
	Uninitialized State = "UNINITIALIZED"
	Planning      State = "PLANNING"
	Planned       State = "PLANNED"
	Applying      State = "APPLYING"
	Applied       State = "APPLIED"
	Failed        State = "FAILED"
	Destroying    State = "DESTROYING"
	Destroyed     State = "DESTROYED"
)

var transitions = map[State][]State{
	Uninitialized: {Planning},
	Planning:      {Planned, Failed},
	Planned:       {Applying, Planning},
	Applying:      {Applied, Failed},
	Applied:       {Destroying},
	Failed:        {Destroying, Planning},
	Destroying:    {Destroyed, Failed},
}

// ErrInvalidTransition is returned when an operation is not allowed in the
// current state.
var ErrInvalidTransition = errors.New("invalid state transition")

// ErrNotApplied is returned by Outputs outside the APPLIED state.
var ErrNotApplied = errors.New("stack is not applied")

// Failure names a resource whose operation failed.
type Failure struct {
	Resource string `json:"resource"`
	Category string `json:"category"`
	Reason   string `json:"reason"`
}

// Report summarises the last operation for the operator.
type Report struct {
	Stack       string    `json:"stack"`
	State       State     `json:"state"`
	LastApplied string    `json:"lastApplied,omitempty"`
	Created     []string  `json:"created,omitempty"`
	Deleted     []string  `json:"deleted,omitempty"`
	Retained    []string  `json:"retained,omitempty"`
	Failures    []Failure `json:"failures,omitempty"`
}

// Failed returns the first failure, if any.
func (r Report) Failed() (Failure, bool) {
	if len(r.Failures) == 0 {
		return Failure{}, false
	}
	return r.Failures[0], true
}

// Outputs are the identifiers exposed once the stack is applied.
type Outputs struct {
	BucketID             string `json:"bucketId"`
	DistributionID       string `json:"distributionId"`
	DistributionEndpoint string `json:"distributionEndpoint"`
	PrincipalRef         string `json:"principalRef"`
}

// Option configures a Stack.
type Option func(*Stack)

func WithLogger(log *zap.Logger) Option {
	return func(s *Stack) { s.log = log }
}

func WithObserver(o *metrics.Observer) Option {
	return func(s *Stack) { s.observer = o }
}

// Stack is one deployment of a set of descriptors.
type Stack struct {
	name        string
	descriptors []resource.Descriptor
	prov        *provision.Provisioner
	log         *zap.Logger
	observer    *metrics.Observer

	mu      sync.Mutex
	state   State
	plan    *plan.Plan
	created []string
	attrs   provision.State
	report  Report
}

// New returns an UNINITIALIZED stack.
func New(name string, descs []resource.Descriptor, prov *provision.Provisioner, opts ...Option) *Stack {
	s := &Stack{
		name:        name,
		descriptors: append([]resource.Descriptor(nil), descs...),
		prov:        prov,
		log:         zap.NewNop(),
		state:       Uninitialized,
		attrs:       provision.State{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.String("stack", name))
	s.report = Report{Stack: name, State: Uninitialized}
	return s
}

// State returns the current phase.
func (s *Stack) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Report returns the report of the last operation.
func (s *Stack) Report() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Created returns the resources that currently exist, in creation order.
func (s *Stack) Created() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.created...)
}

// Attributes returns the attributes of a created resource.
func (s *Stack) Attributes(name string) (resource.Attributes, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attrs[name]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// Plan validates and orders the descriptors. A ConfigurationError moves the
// stack to FAILED.
func (s *Stack) Plan() (*plan.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Failed && len(s.created) > 0 {
		return nil, fmt.Errorf("%w: %d resources still exist, destroy first", ErrInvalidTransition, len(s.created))
	}
	if err := s.transition(Planning); err != nil {
		return nil, err
	}
	s.report = Report{Stack: s.name, State: Planning}

	p, err := plan.Build(s.descriptors)
	if err != nil {
		s.fail("", err)
		_ = s.transition(Failed)
		return nil, err
	}
	s.plan = p
	_ = s.transition(Planned)
	s.log.Info("planned", zap.Strings("order", p.Names()))
	return p, nil
}

// Apply creates every resource in plan order. The first failure halts the
// sequence and moves the stack to FAILED without rolling back.
func (s *Stack) Apply(ctx context.Context) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.transition(Applying); err != nil {
		return s.snapshot(), err
	}
	s.report = Report{Stack: s.name, State: Applying}

	for _, d := range s.plan.Order() {
		attrs, err := s.prov.Create(ctx, d, s.attrs)
		if err != nil {
			s.fail(d.Name(), err)
			_ = s.transition(Failed)
			return s.snapshot(), err
		}
		s.attrs[d.Name()] = attrs
		s.created = append(s.created, d.Name())
		s.report.Created = append(s.report.Created, d.Name())
		s.report.LastApplied = d.Name()
	}

	_ = s.transition(Applied)
	return s.snapshot(), nil
}

// Destroy deletes every created resource in reverse creation order,
// continuing past failures. Buckets with a retain policy are left in place
// and reported as retained.
func (s *Stack) Destroy(ctx context.Context) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.transition(Destroying); err != nil {
		return s.snapshot(), err
	}
	s.report = Report{Stack: s.name, State: Destroying}

	var (
		errs      error
		remaining []string
	)
	for i := len(s.created) - 1; i >= 0; i-- {
		name := s.created[i]
		d, ok := s.lookup(name)
		if !ok {
			continue
		}
		del, err := s.prov.Delete(ctx, d, s.attrs[name])
		if err != nil {
			errs = multierr.Append(errs, err)
			s.fail(name, err)
			remaining = append([]string{name}, remaining...)
			continue
		}
		delete(s.attrs, name)
		if del.Retained {
			s.report.Retained = append(s.report.Retained, name)
		} else {
			s.report.Deleted = append(s.report.Deleted, name)
		}
	}
	s.created = remaining

	if errs != nil {
		_ = s.transition(Failed)
		return s.snapshot(), errs
	}
	_ = s.transition(Destroyed)
	return s.snapshot(), nil
}

// Outputs returns the stack outputs. It fails unless the stack is APPLIED.
func (s *Stack) Outputs() (Outputs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Applied {
		return Outputs{}, fmt.Errorf("%w: state is %s", ErrNotApplied, s.state)
	}
	var out Outputs
	for _, d := range s.plan.Order() {
		attrs := s.attrs[d.Name()]
		switch d.Kind() {
		case resource.KindBucket:
			if out.BucketID == "" {
				out.BucketID = attrs.Get(resource.AttrID)
			}
		case resource.KindDistribution:
			if out.DistributionID == "" {
				out.DistributionID = attrs.Get(resource.AttrID)
				out.DistributionEndpoint = attrs.Get(resource.AttrEndpoint)
				dist, _ := d.DistributionSpec()
				out.PrincipalRef = s.attrs[dist.Identity].Get(resource.AttrPrincipalRef)
			}
		}
	}
	return out, nil
}

func (s *Stack) lookup(name string) (resource.Descriptor, bool) {
	if s.plan != nil {
		return s.plan.Lookup(name)
	}
	for _, d := range s.descriptors {
		if d.Name() == name {
			return d, true
		}
	}
	return resource.Descriptor{}, false
}

func (s *Stack) transition(to State) error {
	for _, allowed := range transitions[s.state] {
		if allowed == to {
			s.log.Info("state transition", zap.String("from", string(s.state)), zap.String("state", string(to)))
			s.state = to
			s.report.State = to
			s.observer.ObserveTransition(string(to))
			return nil
		}
	}
	return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, s.state, to)
}

func (s *Stack) fail(name string, err error) {
	s.report.Failures = append(s.report.Failures, Failure{
		Resource: name,
		Category: stackerr.Category(err),
		Reason:   err.Error(),
	})
}

func (s *Stack) snapshot() Report {
	r := s.report
	r.Created = append([]string(nil), r.Created...)
	r.Deleted = append([]string(nil), r.Deleted...)
	r.Retained = append([]string(nil), r.Retained...)
	r.Failures = append([]Failure(nil), r.Failures...)
	return r
}
