// Package association makes sure a recipient can hold a token before a swap
// delivers it.
package association

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	xerrors "hedera-swap-plugin/internal/errors"
	"hedera-swap-plugin/internal/ledger"
	"hedera-swap-plugin/internal/networks"
	"hedera-swap-plugin/pkg/logger"
)

// Memo tags association transactions submitted by the guard.
const Memo = "Associate token for SaucerSwap swap"

// UnlimitedAutoAssociations is the ceiling value meaning any token is
// associated automatically on first receipt.
const UnlimitedAutoAssociations = -1

// Lookups is the part of the mirror client the guard depends on.
type Lookups interface {
	AccountHasToken(ctx context.Context, baseURL, accountID, tokenID string) (bool, error)
	MaxAutoAssociations(ctx context.Context, baseURL, accountID string) (int, error)
}

// Status is the per-request association state of an account.
type Status struct {
	IsAssociated        bool
	MaxAutoAssociations int
}

// NeedsAssociation reports whether a TokenAssociate transaction is required.
func (s Status) NeedsAssociation() bool {
	return !s.IsAssociated && s.MaxAutoAssociations != UnlimitedAutoAssociations
}

// Guard decides whether an association is needed and submits it when allowed.
type Guard struct {
	conn    ledger.Connection
	handler ledger.Handler
	lookups Lookups
	table   networks.Table
	log     *slog.Logger
	audit   *slog.Logger
}

// Option customises a Guard.
type Option func(*Guard)

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.log = l
		}
	}
}

// WithAuditLogger overrides the audit logger.
func WithAuditLogger(l *slog.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.audit = l
		}
	}
}

// NewGuard wires a guard to its collaborators.
func NewGuard(conn ledger.Connection, handler ledger.Handler, lookups Lookups, table networks.Table, opts ...Option) *Guard {
	g := &Guard{
		conn:    conn,
		handler: handler,
		lookups: lookups,
		table:   table,
		log:     logger.Named("association"),
		audit:   logger.Audit(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Check fetches the association state of accountID for tokenID. Both lookups
// run in parallel and both must succeed.
func (g *Guard) Check(ctx context.Context, accountID, tokenID string) (Status, error) {
	network, ok := g.conn.Network()
	if !ok {
		return Status{}, xerrors.New(xerrors.CodeUnsupportedNetwork, "ledger connection has no network")
	}
	baseURL, ok := g.table.MirrorNodeURL(network)
	if !ok {
		return Status{}, xerrors.Newf(xerrors.CodeUnsupportedNetwork, "no mirror node configured for %s", network)
	}

	var status Status
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		associated, err := g.lookups.AccountHasToken(groupCtx, baseURL, accountID, tokenID)
		status.IsAssociated = associated
		return err
	})
	group.Go(func() error {
		ceiling, err := g.lookups.MaxAutoAssociations(groupCtx, baseURL, accountID)
		status.MaxAutoAssociations = ceiling
		return err
	})
	if err := group.Wait(); err != nil {
		return Status{}, err
	}
	return status, nil
}

// Ensure returns nil once accountID can receive tokenID. In return_bytes mode
// it never submits a transaction and fails with ASSOCIATION_REQUIRED instead.
func (g *Guard) Ensure(ctx context.Context, call ledger.CallContext, accountID, tokenID string) error {
	status, err := g.Check(ctx, accountID, tokenID)
	if err != nil {
		return err
	}
	if !status.NeedsAssociation() {
		g.log.Debug("association not required",
			slog.String("account_id", accountID),
			slog.String("token_id", tokenID),
			slog.Bool("associated", status.IsAssociated),
			slog.Int("max_auto_associations", status.MaxAutoAssociations),
		)
		return nil
	}

	if call.ReturnsBytes() {
		return xerrors.New(xerrors.CodeAssociationRequired,
			fmt.Sprintf("account %s must associate token %s before swapping in return_bytes mode", accountID, tokenID),
			xerrors.WithMetadata("account_id", accountID),
			xerrors.WithMetadata("token_id", tokenID),
		)
	}

	tx := ledger.TokenAssociate{
		AccountID: accountID,
		TokenIDs:  []string{tokenID},
		Memo:      Memo,
	}
	outcome, err := g.handler.Handle(ctx, tx, call)
	if err != nil {
		return err
	}
	if outcome == nil || outcome.IsBytes() {
		return xerrors.New(xerrors.CodeUnexpectedMode, "association handler returned bytes in autonomous mode")
	}

	g.audit.Info("token association submitted",
		slog.String("account_id", accountID),
		slog.String("token_id", tokenID),
		slog.String("transaction_id", outcome.Receipt.TransactionID),
		slog.String("status", outcome.Receipt.Status),
	)

	if !outcome.Receipt.Succeeded() {
		return xerrors.New(xerrors.CodeAssociationFailed,
			"token association failed with status "+outcome.Receipt.Status,
			xerrors.WithMetadata("status", outcome.Receipt.Status),
			xerrors.WithMetadata("transaction_id", outcome.Receipt.TransactionID),
		)
	}
	return nil
}
