package flows

import "context"

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Login        LoginDeps
	Refresh      RefreshDeps
	Authenticate AuthenticateDeps
	Logout       LogoutDeps
	Status       StatusDeps
}

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Login.FindByEmail != nil && s.deps.Authenticate.VerifyAccess != nil
}

func (s Service) Login(ctx context.Context, email, password string) LoginOutcome {
	return RunLogin(ctx, email, password, s.deps.Login)
}

func (s Service) Refresh(ctx context.Context, refreshToken string) RefreshOutcome {
	return RunRefresh(ctx, refreshToken, s.deps.Refresh)
}

func (s Service) Authenticate(ctx context.Context, accessToken string) AuthenticateOutcome {
	return RunAuthenticate(ctx, accessToken, s.deps.Authenticate)
}

func (s Service) Logout(ctx context.Context, in LogoutInput) LogoutOutcome {
	return RunLogout(ctx, in, s.deps.Logout)
}

func (s Service) ChangeStatus(ctx context.Context, in StatusChange) StatusOutcome {
	return RunStatusChange(ctx, in, s.deps.Status)
}
