package service

import (
	"go.uber.org/zap"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	deps      AuthDeps
	customers CustomerAPI
	consent   ConsentChecker
	logger    *zap.Logger

	authService   *AuthService
	portalService *PortalService
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(deps AuthDeps, customers CustomerAPI, consent ConsentChecker, logger *zap.Logger) *ServiceFactory {
	return &ServiceFactory{
		deps:      deps,
		customers: customers,
		consent:   consent,
		logger:    logger,
	}
}

// AuthService returns the auth service instance (singleton)
func (f *ServiceFactory) AuthService() *AuthService {
	if f.authService == nil {
		f.authService = NewAuthService(f.deps)
	}
	return f.authService
}

// PortalService returns the portal service instance (singleton)
func (f *ServiceFactory) PortalService() *PortalService {
	if f.portalService == nil {
		f.portalService = NewPortalService(f.customers, f.consent, f.deps.Country, f.logger.Named("portal"))
	}
	return f.portalService
}
