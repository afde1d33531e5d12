// Package system defines the lifecycle contract for background components
// and a manager that starts and stops them deterministically.
package system

import (
	"context"

	"github.com/domainledger/registry_layer/pkg/logger"
)

// Service represents a lifecycle-managed component.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Manager starts registered services in order and stops them in reverse.
type Manager struct {
	services []Service
	log      *logger.Logger
}

// NewManager creates an empty manager.
func NewManager(log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewDefault("system")
	}
	return &Manager{log: log}
}

// Register appends a service to the start order.
func (m *Manager) Register(svc Service) {
	m.services = append(m.services, svc)
}

// StartAll starts every registered service, stopping the already-started
// ones if any fails.
func (m *Manager) StartAll(ctx context.Context) error {
	for i, svc := range m.services {
		if err := svc.Start(ctx); err != nil {
			m.log.WithError(err).WithField("service", svc.Name()).Error("service failed to start")
			for j := i - 1; j >= 0; j-- {
				if serr := m.services[j].Stop(ctx); serr != nil {
					m.log.WithError(serr).WithField("service", m.services[j].Name()).Warn("stop during start rollback failed")
				}
			}
			return err
		}
		m.log.WithField("service", svc.Name()).Info("service started")
	}
	return nil
}

// StopAll stops every registered service in reverse order.
func (m *Manager) StopAll(ctx context.Context) error {
	var firstErr error
	for i := len(m.services) - 1; i >= 0; i-- {
		svc := m.services[i]
		if err := svc.Stop(ctx); err != nil {
			m.log.WithError(err).WithField("service", svc.Name()).Warn("service failed to stop")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
