package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/payhub-ph/payhub-backend/internal/gateway"
	"github.com/payhub-ph/payhub-backend/internal/models"
	repo "github.com/payhub-ph/payhub-backend/internal/repository"
)

var (
	ErrInvalidAmount      = errors.New("amount must be > 0")
	ErrUnsupportedChannel = errors.New("unsupported payment channel")
)

// GatewayAPI is the slice of the gateway client the payment service
// needs; tests substitute a fake.
type GatewayAPI interface {
	CreateDeposit(ctx context.Context, channel models.PaymentChannel, req gateway.DepositRequest) (*gateway.DepositResponse, error)
	CreateWithdrawal(ctx context.Context, channel models.PaymentChannel, req gateway.WithdrawalRequest) (*gateway.WithdrawalResponse, error)
}

// PaymentService creates transactions and submits them to the gateway.
// It never applies terminal statuses itself except for synchronous
// gateway rejection, which goes through the same Settle path as
// everything else.
type PaymentService struct {
	trx    repo.Transactions
	audit  repo.AuditLogs
	gw     GatewayAPI
	settle *SettlementService
	log    *slog.Logger
}

func NewPaymentService(t repo.Transactions, a repo.AuditLogs, gw GatewayAPI, settle *SettlementService, log *slog.Logger) *PaymentService {
	return &PaymentService{trx: t, audit: a, gw: gw, settle: settle, log: log}
}

type DepositResult struct {
	Transaction models.Transaction `json:"transaction"`
	RedirectURL string             `json:"redirect_url"`
	QRCodeURL   string             `json:"qr_code_url,omitempty"`
}

func newReference(prefix string) string {
	return prefix + time.Now().UTC().Format("20060102150405") +
		strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *PaymentService) CreateDeposit(ctx context.Context, userID string, amount decimal.Decimal, channel models.PaymentChannel) (DepositResult, error) {
	if !amount.IsPositive() {
		return DepositResult{}, ErrInvalidAmount
	}
	bankCode, paymentType, ok := gateway.ChannelCodes(channel)
	if !ok {
		return DepositResult{}, ErrUnsupportedChannel
	}

	ref := newReference("DEP")
	reqSnap, _ := json.Marshal(map[string]string{
		"amount":       amount.StringFixed(2),
		"bank_code":    bankCode,
		"payment_type": paymentType,
	})
	t, err := s.trx.CreateDeposit(ctx, models.Transaction{
		ReferenceID:     ref,
		UserID:          userID,
		Amount:          amount,
		Channel:         channel,
		RequestSnapshot: reqSnap,
	})
	if err != nil {
		return DepositResult{}, err
	}
	s.record(t, "created", "deposit created")

	resp, err := s.gw.CreateDeposit(ctx, channel, gateway.DepositRequest{
		ReferenceID: ref,
		Amount:      amount,
	})
	if err != nil {
		// Synchronous rejection: the order never existed gateway-side.
		if _, _, ferr := s.settle.ForceFail(ctx, ref, err.Error()); ferr != nil {
			s.log.Error("mark rejected deposit failed", "ref", ref, "err", ferr)
		}
		return DepositResult{}, fmt.Errorf("deposit initiation: %w", err)
	}

	respSnap, _ := json.Marshal(resp)
	if err := s.trx.MarkProcessing(ctx, ref, respSnap); err != nil {
		s.log.Error("mark processing failed", "ref", ref, "err", err)
	}
	t, err = s.trx.GetByReference(ctx, ref)
	if err != nil {
		return DepositResult{}, err
	}
	return DepositResult{
		Transaction: t,
		RedirectURL: resp.RedirectURL,
		QRCodeURL:   resp.QRCodeURL,
	}, nil
}

type WithdrawalInput struct {
	Amount      decimal.Decimal
	Channel     models.PaymentChannel
	AccountNo   string
	AccountName string
}

func (s *PaymentService) CreateWithdrawal(ctx context.Context, userID string, in WithdrawalInput) (models.Transaction, error) {
	if !in.Amount.IsPositive() {
		return models.Transaction{}, ErrInvalidAmount
	}
	if _, _, ok := gateway.ChannelCodes(in.Channel); !ok {
		return models.Transaction{}, ErrUnsupportedChannel
	}

	ref := newReference("WIT")
	reqSnap, _ := json.Marshal(map[string]string{
		"amount":       in.Amount.StringFixed(2),
		"account_name": in.AccountName,
	})
	// Pre-debits the balance atomically with the insert; the refund on
	// failure is the settle path's responsibility from here on.
	t, err := s.trx.CreateWithdrawal(ctx, models.Transaction{
		ReferenceID:     ref,
		UserID:          userID,
		Amount:          in.Amount,
		Channel:         in.Channel,
		RequestSnapshot: reqSnap,
	})
	if err != nil {
		return models.Transaction{}, err
	}
	s.record(t, "created", "withdrawal created, balance pre-debited")

	resp, err := s.gw.CreateWithdrawal(ctx, in.Channel, gateway.WithdrawalRequest{
		ReferenceID: ref,
		Amount:      in.Amount,
		AccountNo:   in.AccountNo,
		AccountName: in.AccountName,
	})
	if err != nil {
		if _, _, ferr := s.settle.ForceFail(ctx, ref, err.Error()); ferr != nil {
			s.log.Error("mark rejected withdrawal failed", "ref", ref, "err", ferr)
		}
		return models.Transaction{}, fmt.Errorf("withdrawal initiation: %w", err)
	}

	respSnap, _ := json.Marshal(resp)
	if err := s.trx.MarkProcessing(ctx, ref, respSnap); err != nil {
		s.log.Error("mark processing failed", "ref", ref, "err", err)
	}
	return s.trx.GetByReference(ctx, ref)
}

func (s *PaymentService) GetByReference(ctx context.Context, ref string) (models.Transaction, error) {
	return s.trx.GetByReference(ctx, ref)
}

func (s *PaymentService) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	return s.trx.ListByUser(ctx, userID, limit, offset)
}

// AdminRefund is the manual correction path into refunded.
func (s *PaymentService) AdminRefund(ctx context.Context, ref string) (models.Transaction, error) {
	t, err := s.trx.AdminRefund(ctx, ref)
	if err != nil {
		return models.Transaction{}, err
	}
	s.record(t, "status_change", "manual refund correction")
	return t, nil
}

func (s *PaymentService) record(t models.Transaction, action, msg string) {
	ref := t.ReferenceID
	_ = s.audit.Create(context.Background(), models.AuditLog{
		EntityType: "transaction",
		EntityID:   &ref,
		Action:     action,
		Details:    map[string]any{"message": msg, "kind": string(t.Kind)},
	})
}
