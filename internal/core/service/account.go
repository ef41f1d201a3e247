package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/port"
)

// AccountService covers registration, role lookup and the role-upgrade workflow.
// A Requested upgrade has no expiry; it stays pending until an Admin resolves it.
type AccountService struct {
	gate     *Gate
	accounts port.AccountRepository
	rt       runtime
}

func NewAccountService(gate *Gate, accounts port.AccountRepository, opts Options) *AccountService {
	return &AccountService{gate: gate, accounts: accounts, rt: newRuntime(opts)}
}

// Register creates the caller's account with the Customer role. Registering an
// existing account returns it unchanged.
func (s *AccountService) Register(ctx context.Context, id domain.Identity, name string) (account *domain.Account, err error) {
	ctx, end := s.rt.start(ctx, "register_account")
	defer end(&err)

	if !id.Authenticated {
		return nil, domain.ErrUnauthorized
	}
	fresh, err := domain.NewAccount(id.AccountID, name, s.rt.Now())
	if err != nil {
		return nil, err
	}

	err = s.rt.call(ctx, func(ctx context.Context) error {
		var err error
		account, err = s.accounts.CreateAccount(ctx, *fresh)
		return err
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *AccountService) Role(ctx context.Context, accountID string) (role domain.Role, err error) {
	ctx, end := s.rt.start(ctx, "account_role", attribute.String("account_id", accountID))
	defer end(&err)

	var account *domain.Account
	err = s.rt.read(ctx, func(ctx context.Context) error {
		var err error
		account, err = s.accounts.GetAccount(ctx, accountID)
		return err
	})
	if err != nil {
		return "", err
	}
	return account.Role, nil
}

// ListAccounts returns every account except the calling admin's.
func (s *AccountService) ListAccounts(ctx context.Context, id domain.Identity) (accounts []domain.Account, err error) {
	ctx, end := s.rt.start(ctx, "list_accounts")
	defer end(&err)

	admin, err := s.gate.Authorize(ctx, id, OpListAccounts)
	if err != nil {
		return nil, err
	}

	err = s.rt.read(ctx, func(ctx context.Context) error {
		var err error
		accounts, err = s.accounts.ListAccounts(ctx, admin.ID)
		return err
	})
	return accounts, err
}

func (s *AccountService) RequestUpgrade(ctx context.Context, id domain.Identity) (err error) {
	ctx, end := s.rt.start(ctx, "request_upgrade")
	defer end(&err)

	account, err := s.gate.Authorize(ctx, id, OpRequestUpgrade)
	if err != nil {
		return err
	}

	err = s.rt.call(ctx, func(ctx context.Context) error {
		return s.accounts.RequestUpgrade(ctx, account.ID)
	})
	if err != nil {
		return err
	}

	s.rt.log(ctx).Info("upgrade_requested", zap.String("account_id", account.ID))
	return nil
}

func (s *AccountService) ResolveUpgrade(ctx context.Context, id domain.Identity, targetID string, role domain.Role) (err error) {
	ctx, end := s.rt.start(ctx, "resolve_upgrade",
		attribute.String("target_id", targetID),
		attribute.String("role", string(role)),
	)
	defer end(&err)

	admin, err := s.gate.Authorize(ctx, id, OpResolveUpgrade)
	if err != nil {
		return err
	}
	if _, err := domain.ParseRole(string(role)); err != nil {
		return err
	}

	err = s.rt.call(ctx, func(ctx context.Context) error {
		return s.accounts.ResolveUpgrade(ctx, targetID, role)
	})
	if err != nil {
		return err
	}

	s.rt.log(ctx).Info("upgrade_resolved",
		zap.String("account_id", targetID),
		zap.String("role", string(role)),
		zap.String("resolved_by", admin.ID),
	)
	return nil
}
