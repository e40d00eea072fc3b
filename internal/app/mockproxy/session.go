package mockproxy

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Session is the test-scoped state of the mocking layer: registered mocks and captured
// interactions. Each test, proxy listener or browser tab gets its own.
type Session struct {
	mu       sync.RWMutex
	config   Config
	mocks    *Mocks
	recorder *Recorder
	notify   *notify
	preload  []Definition
}

func NewSession(config Config) *Session {
	return &Session{
		config:   config.withDefaults(),
		mocks:    newMocks(),
		recorder: newRecorder(),
		notify:   newNotify(),
	}
}

func (s *Session) state() (*Mocks, *Recorder) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mocks, s.recorder
}

// Reset drops every mock and captured interaction. Preloaded mocks are registered
// again.
func (s *Session) Reset() {
	s.mu.Lock()
	s.mocks = newMocks()
	s.recorder = newRecorder()
	preload := s.preload
	s.mu.Unlock()
	s.notify.Notify()

	if err := s.RegisterAll(preload); err != nil {
		log.Errorf("unable to restore preloaded mocks: %s", err)
	}
}

// Preload registers defs and keeps them registered across resets.
func (s *Session) Preload(defs []Definition) error {
	if err := s.RegisterAll(defs); err != nil {
		return err
	}
	s.mu.Lock()
	s.preload = append(s.preload, defs...)
	s.mu.Unlock()
	return nil
}

func (s *Session) Config() Config {
	return s.config
}

// Passthrough reports whether unmatched requests should be forwarded to the target.
func (s *Session) Passthrough() bool {
	return s.config.UnmatchedPolicy == UnmatchedPassthrough && s.config.Target.Host != ""
}

// Register validates def and stores it. Template and params mismatches fail here rather
// than when a request arrives.
func (s *Session) Register(def Definition) (*Mock, error) {
	mock, err := newMock(def)
	if err != nil {
		return nil, err
	}

	mocks, _ := s.state()
	if err := mocks.Store(mock); err != nil {
		return nil, err
	}

	if mock.Alias != "" {
		log.Infof("registered mock '%s' as '@%s'", mock.Key(), mock.Alias)
	} else {
		log.Infof("registered mock '%s'", mock.Key())
	}
	return mock, nil
}

func (s *Session) RegisterAll(defs []Definition) error {
	for _, def := range defs {
		if _, err := s.Register(def); err != nil {
			return errors.Wrapf(err, "unable to register '%s %s'", def.Method, def.Path)
		}
	}
	return nil
}

func (s *Session) Mocks() []*Mock {
	mocks, _ := s.state()
	return mocks.All()
}

func (s *Session) Mock(alias string) (*Mock, bool) {
	mocks, _ := s.state()
	return mocks.Load(alias)
}

func (s *Session) AddConstraint(constraint Constraint) error {
	mock, ok := s.Mock(constraint.Alias)
	if !ok {
		return errors.Wrapf(ErrUnknownAlias, "'%s'", constraint.Alias)
	}
	log.Infof("adding constraint '%s' to '@%s'", constraint.Path, constraint.Alias)
	mock.AddConstraint(constraint)
	return nil
}

func (s *Session) AddModifier(modifier *Modifier) error {
	mock, ok := s.Mock(modifier.Alias)
	if !ok {
		return errors.Wrapf(ErrUnknownAlias, "'%s'", modifier.Alias)
	}
	log.Infof("adding modifier '%s' to '@%s'", modifier.Path, modifier.Alias)
	mock.AddModifier(modifier)
	return nil
}

// Resolve answers an intercepted request from the registered mocks and records it.
// Unmatched requests return a *NoMockError.
func (s *Session) Resolve(req InterceptedRequest) (*Reply, error) {
	mocks, recorder := s.state()

	method := strings.ToUpper(req.Method)
	mock, ok := mocks.Find(method, req.URL.Path)
	if !ok {
		return nil, &NoMockError{Method: method, Path: req.URL.Path}
	}

	if ok, violations := mock.EvaluateConstraints(newRequestDocument(req)); !ok {
		log.Infof("constraints do not match for '%s'.\n\n%s", mock.Key(), strings.Join(violations, "\n"))
		return nil, errors.Wrapf(ErrConstraintsNotMet, "%s", strings.Join(violations, "; "))
	}

	reply, err := mock.respond()
	if err != nil {
		return nil, err
	}

	recorder.record(newCapturedInteraction(mock, req))
	s.notify.Notify()
	return reply, nil
}

func (s *Session) Interactions(alias string) []*CapturedInteraction {
	_, recorder := s.state()
	return recorder.Interactions(alias)
}

// WaitFor blocks until the next interaction for alias has been observed and returns it.
func (s *Session) WaitFor(ctx context.Context, alias string) (*CapturedInteraction, error) {
	captured, err := s.WaitForCount(ctx, alias, 1)
	if err != nil {
		return nil, err
	}
	return captured[0], nil
}

// WaitForCount blocks until count interactions for alias, not handed out by an earlier
// wait, have been observed. The wait is bounded by the configured duration or the
// context deadline, whichever is sooner.
func (s *Session) WaitForCount(ctx context.Context, alias string, count int) ([]*CapturedInteraction, error) {
	if count < 1 {
		count = 1
	}

	mocks, recorder := s.state()
	mock, ok := mocks.Load(alias)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAlias, "cannot wait for '@%s'", alias)
	}

	start := time.Now()
	duration := s.waitDuration(ctx)
	log.WithField("wait_for", alias).Infof("waiting")

	var captured []*CapturedInteraction
	retryFor(ctx, func(timeLeft time.Duration) bool {
		log.WithFields(log.Fields{
			"wait_for":       alias,
			"count":          count,
			"time_remaining": timeLeft,
		}).Debug("retry")

		notified := s.notify.C()
		var ok bool
		if captured, ok = recorder.take(alias, count); ok {
			return true
		}
		if timeLeft > 0 {
			s.notify.Wait(ctx, notified, timeLeft)
			captured, ok = recorder.take(alias, count)
		}
		return ok
	}, s.config.WaitDelay, duration)

	if captured == nil {
		if err := ctx.Err(); errors.Is(err, context.Canceled) {
			return nil, errors.Wrapf(err, "waiting for '@%s'", alias)
		}
		return nil, &WaitTimeoutError{
			Alias:    alias,
			Count:    count,
			Received: recorder.pending(alias),
			Elapsed:  time.Since(start),
		}
	}

	mock.markAsserted()
	return captured, nil
}

// WaitForAll blocks until every registered mock has been matched at least once.
func (s *Session) WaitForAll(ctx context.Context) error {
	mocks, _ := s.state()
	start := time.Now()
	log.Info("waiting for all")

	retryFor(ctx, func(timeLeft time.Duration) bool {
		notified := s.notify.C()
		if mocks.AllHaveRequests() {
			return true
		}
		if timeLeft > 0 {
			s.notify.Wait(ctx, notified, timeLeft)
		}
		return mocks.AllHaveRequests()
	}, s.config.WaitDelay, s.waitDuration(ctx))

	if !mocks.AllHaveRequests() {
		for _, mock := range mocks.All() {
			if !mock.HasRequests(1) {
				log.Infof("'%s' has no requests", mock.Key())
			}
		}
		if err := ctx.Err(); errors.Is(err, context.Canceled) {
			return errors.Wrap(err, "waiting for all mocks")
		}
		return &WaitTimeoutError{Elapsed: time.Since(start)}
	}
	return nil
}

func (s *Session) waitDuration(ctx context.Context) time.Duration {
	duration := s.config.WaitDuration
	if deadline, ok := ctx.Deadline(); ok {
		if untilDeadline := time.Until(deadline); untilDeadline < duration {
			duration = untilDeadline
		}
	}
	return duration
}
