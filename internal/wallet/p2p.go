package wallet

import (
	"context"
	"database/sql"
	"log"

	"github.com/kobopay/backend/internal/models"
	"github.com/shopspring/decimal"
)

const p2pLimitLockReason = "Daily deposit limit exceeded by incoming transfer"

type P2PReceipt struct {
	Reference   string          `json:"reference"`
	Amount      decimal.Decimal `json:"amount"`
	Fee         decimal.Decimal `json:"fee"`
	ReceiverTag string          `json:"receiverTag"`
	Status      string          `json:"status"`
}

// SendP2P moves money between two wallets on the platform. The debit and
// credit legs plus the transfer link row commit in one atomic unit; there
// is no state in which only one leg exists. The sender's daily P2P limit is
// fail-closed, the receiver's inbound (deposit) limit is fail-open: the
// credit always lands, but a breach locks the receiver's wallet.
func (s *Service) SendP2P(ctx context.Context, senderID int64, receiverTag, rawAmount, pin, message string) (*P2PReceipt, error) {
	amount, err := parseAmount(rawAmount)
	if err != nil {
		return nil, err
	}
	if err := s.pins.VerifyPin(ctx, senderID, pin); err != nil {
		return nil, err
	}

	sender, err := s.userByID(ctx, senderID)
	if err != nil {
		return nil, err
	}
	if sender.Status != models.UserStatusActive {
		return nil, NewValidationError("account is not active")
	}
	if cap, capped := P2PTransactionCap(sender.KYCTier); capped {
		if cap.IsZero() {
			return nil, NewValidationError("your verification level does not allow transfers; complete BVN verification to send money")
		}
		if amount.GreaterThan(cap) {
			return nil, NewValidationError("maximum transfer per transaction for your level is ₦%s", cap.StringFixed(2))
		}
	}

	receiver, err := s.userByTag(ctx, receiverTag)
	if err != nil {
		return nil, err
	}
	if receiver.ID == sender.ID {
		return nil, NewValidationError("you cannot send money to yourself")
	}
	if receiver.Status != models.UserStatusActive {
		return nil, NewValidationError("recipient account cannot receive money right now")
	}

	check, err := s.limits.CheckDailyLimit(ctx, senderID, amount, CategoryP2P)
	if err != nil {
		return nil, err
	}
	if !check.CanProceed {
		return nil, &LimitExceededError{Category: CategoryP2P, Limit: check.Limit, Spent: check.Spent}
	}

	inbound, err := s.limits.CheckDailyLimit(ctx, receiver.ID, amount, CategoryDeposit)
	if err != nil {
		return nil, err
	}

	fee := P2PFee(amount)
	reference := P2PReference()
	creditRef := reference + "-CR"

	creditEntry := Entry{
		Wallet:      WalletKey{UserID: receiver.ID, Type: models.WalletNaira},
		Delta:       amount,
		AllowLocked: true,
		Record: RecordSpec{
			Reference: creditRef,
			Type:      models.TxnTransfer,
			Status:    models.TxnCompleted,
			Amount:    amount,
			Fee:       decimal.Zero,
			Metadata: models.TransactionMetadata{
				P2P: &models.P2PMetadata{
					SenderID:    sender.ID,
					ReceiverID:  receiver.ID,
					SenderTag:   sender.Tag,
					ReceiverTag: receiver.Tag,
					Direction:   "credit",
					Message:     message,
				},
			},
		},
	}
	if !inbound.CanProceed && !inbound.Unlimited {
		creditEntry.LockReason = p2pLimitLockReason
		log.Printf("[P2P] Receiver %d breached inbound daily limit, crediting and locking wallet", receiver.ID)
	}

	_, err = s.ledger.Apply(ctx, ApplyRequest{
		Entries: []Entry{
			{
				Wallet: WalletKey{UserID: sender.ID, Type: models.WalletNaira},
				Delta:  amount.Add(fee).Neg(),
				Record: RecordSpec{
					Reference: reference,
					Type:      models.TxnTransfer,
					Status:    models.TxnCompleted,
					Amount:    amount,
					Fee:       fee,
					Metadata: models.TransactionMetadata{
						P2P: &models.P2PMetadata{
							SenderID:    sender.ID,
							ReceiverID:  receiver.ID,
							SenderTag:   sender.Tag,
							ReceiverTag: receiver.Tag,
							Direction:   "debit",
							Message:     message,
						},
					},
				},
			},
			creditEntry,
		},
		After: func(tx *sql.Tx, res *ApplyResult) error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO p2p_transfers
				(reference, sender_id, receiver_id, amount, fee, status, message, debit_transaction_id, credit_transaction_id, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())`,
				reference, sender.ID, receiver.ID, amount, fee, string(models.TxnCompleted), message,
				res.Mutations[0].Transaction.ID, res.Mutations[1].Transaction.ID)
			return err
		},
	})
	if err != nil {
		return nil, err
	}

	if err := s.limits.IncrementDailySpend(ctx, sender.ID, amount, CategoryP2P); err != nil {
		log.Printf("[P2P] Failed to record sender daily spend: %v", err)
	}
	if err := s.limits.IncrementDailySpend(ctx, receiver.ID, amount, CategoryDeposit); err != nil {
		log.Printf("[P2P] Failed to record receiver daily spend: %v", err)
	}
	if creditEntry.LockReason != "" {
		s.audit.Record(ctx, models.AuditLog{
			ActorID:      sender.ID,
			Action:       "wallet.lock",
			TargetUserID: receiver.ID,
			Reference:    creditRef,
			Details: map[string]any{
				"reason": creditEntry.LockReason,
				"amount": amount.String(),
			},
		})
	}
	s.notifier.Notify(ctx, NotificationEvent{
		UserID:    sender.ID,
		Type:      "p2p.sent",
		Reference: reference,
		Amount:    amount,
	})
	s.notifier.Notify(ctx, NotificationEvent{
		UserID:    receiver.ID,
		Type:      "p2p.received",
		Reference: creditRef,
		Amount:    amount,
		Message:   message,
	})
	if creditEntry.LockReason != "" {
		s.notifier.Notify(ctx, NotificationEvent{
			UserID:    receiver.ID,
			Type:      "wallet.locked",
			Reference: creditRef,
			Amount:    amount,
			Message:   creditEntry.LockReason,
		})
	}

	return &P2PReceipt{
		Reference:   reference,
		Amount:      amount,
		Fee:         fee,
		ReceiverTag: receiver.Tag,
		Status:      string(models.TxnCompleted),
	}, nil
}

// ResolveTag returns the public identity behind a tag, for the send-money
// confirmation screen.
func (s *Service) ResolveTag(ctx context.Context, tag string) (*models.User, error) {
	user, err := s.userByTag(ctx, tag)
	if err != nil {
		return nil, err
	}
	return user, nil
}
