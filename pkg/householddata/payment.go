package householddata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/foodwaste-data/pkg/dataprovider"
	fwerrors "github.com/otherjamesbrown/foodwaste-data/pkg/errors"
	"github.com/otherjamesbrown/foodwaste-data/pkg/systemdata"
)

const (
	paymentColumns = "pa.payment_identifier, pa.stakeholder_identifier, pa.stakeholder_type, pa.payment_time, pa.payment_reference, pa.payment_receipt, pa.creation_time, " +
		"dp.data_provider_identifier, dp.name, dp.handles_payments, dp.data_source_statement_identifier"
	paymentFrom = "FROM payments AS pa JOIN data_providers AS dp ON dp.data_provider_identifier = pa.data_provider_identifier"

	paymentReferenceSize = 128
)

// Payment is a membership payment handled by a payment data provider.
type Payment struct {
	ID               uuid.UUID
	StakeholderID    uuid.UUID
	StakeholderType  StakeholderType
	DataProvider     *systemdata.DataProvider
	PaymentTime      time.Time
	PaymentReference string
	PaymentReceipt   []byte
	CreationTime     time.Time
}

// NewPayment creates an in-memory payment with a fresh identifier.
func NewPayment(dp *systemdata.DataProvider, paymentTime time.Time, reference string, receipt []byte, now time.Time) *Payment {
	return &Payment{
		ID:               uuid.New(),
		DataProvider:     dp,
		PaymentTime:      paymentTime.UTC(),
		PaymentReference: reference,
		PaymentReceipt:   receipt,
		CreationTime:     now.UTC(),
	}
}

func (pa *Payment) UniqueID() string { return uniqueID("payment", pa.ID) }

// Identifier returns the payment identifier.
func (pa *Payment) Identifier() uuid.UUID { return pa.ID }

func (pa *Payment) QueryForID() (dataprovider.Command, error) {
	if err := requireID("payment", pa.ID); err != nil {
		return dataprovider.Command{}, err
	}
	return dataprovider.NewHouseholdCommandBuilder(
		"SELECT "+paymentColumns+" "+paymentFrom+" WHERE pa.payment_identifier = @paymentIdentifier").
		AddIdentifierParameter("@paymentIdentifier", pa.ID).
		Build()
}

func (pa *Payment) InsertCommand() (dataprovider.Command, error) {
	if err := pa.validate(); err != nil {
		return dataprovider.Command{}, err
	}
	return pa.writeCommand(
		"INSERT INTO payments (payment_identifier, stakeholder_identifier, stakeholder_type, data_provider_identifier, payment_time, payment_reference, payment_receipt, creation_time) VALUES (@paymentIdentifier, @stakeholderIdentifier, @stakeholderType, @dataProviderIdentifier, @paymentTime, @paymentReference, @paymentReceipt, @creationTime)")
}

func (pa *Payment) UpdateCommand() (dataprovider.Command, error) {
	if err := pa.validate(); err != nil {
		return dataprovider.Command{}, err
	}
	return pa.writeCommand(
		"UPDATE payments SET stakeholder_identifier = @stakeholderIdentifier, stakeholder_type = @stakeholderType, data_provider_identifier = @dataProviderIdentifier, payment_time = @paymentTime, payment_reference = @paymentReference, payment_receipt = @paymentReceipt, creation_time = @creationTime WHERE payment_identifier = @paymentIdentifier")
}

func (pa *Payment) writeCommand(sql string) (dataprovider.Command, error) {
	return dataprovider.NewHouseholdCommandBuilder(sql).
		AddIdentifierParameter("@paymentIdentifier", pa.ID).
		AddIdentifierParameter("@stakeholderIdentifier", pa.StakeholderID).
		AddSmallIntParameter("@stakeholderType", int(pa.StakeholderType)).
		AddIdentifierParameter("@dataProviderIdentifier", pa.DataProvider.ID).
		AddDateTimeParameter("@paymentTime", pa.PaymentTime).
		AddVarCharParameter("@paymentReference", pa.PaymentReference, paymentReferenceSize, false).
		AddBinaryParameter("@paymentReceipt", pa.PaymentReceipt).
		AddDateTimeParameter("@creationTime", pa.CreationTime).
		Build()
}

func (pa *Payment) DeleteCommand() (dataprovider.Command, error) {
	if err := requireID("payment", pa.ID); err != nil {
		return dataprovider.Command{}, err
	}
	return dataprovider.NewHouseholdCommandBuilder(
		"DELETE FROM payments WHERE payment_identifier = @paymentIdentifier").
		AddIdentifierParameter("@paymentIdentifier", pa.ID).
		Build()
}

func (pa *Payment) validate() error {
	if err := requireID("payment", pa.ID); err != nil {
		return err
	}
	if pa.StakeholderID == uuid.Nil {
		return fmt.Errorf("payment %s has no stakeholder: %w", pa.ID, fwerrors.ErrValidation)
	}
	if pa.DataProvider == nil || pa.DataProvider.ID == uuid.Nil {
		return fmt.Errorf("payment %s has no data provider: %w", pa.ID, fwerrors.ErrValidation)
	}
	if !pa.DataProvider.HandlesPayments {
		return fmt.Errorf("data provider %s does not handle payments: %w", pa.DataProvider.Name, fwerrors.ErrValidation)
	}
	if strings.TrimSpace(pa.PaymentReference) == "" {
		return fmt.Errorf("payment %s has no reference: %w", pa.ID, fwerrors.ErrValidation)
	}
	return nil
}

func (pa *Payment) MapData(r dataprovider.Reader, p dataprovider.Provider) error {
	var err error
	if pa.ID, err = r.UUID("payment_identifier"); err != nil {
		return err
	}
	if pa.StakeholderID, err = r.UUID("stakeholder_identifier"); err != nil {
		return err
	}
	stakeholderType, err := r.Int("stakeholder_type")
	if err != nil {
		return err
	}
	pa.StakeholderType = StakeholderType(stakeholderType)
	if pa.PaymentTime, err = r.Time("payment_time"); err != nil {
		return err
	}
	if pa.PaymentReference, err = r.String("payment_reference"); err != nil {
		return err
	}
	if pa.PaymentReceipt, err = r.Bytes("payment_receipt"); err != nil {
		return err
	}
	if pa.CreationTime, err = r.Time("creation_time"); err != nil {
		return err
	}
	pa.DataProvider = &systemdata.DataProvider{}
	return pa.DataProvider.MapData(r, p)
}

func (pa *Payment) MapRelations(context.Context, dataprovider.Provider) error { return nil }

func (pa *Payment) SaveRelations(context.Context, dataprovider.Provider, bool) error { return nil }

func (pa *Payment) DeleteRelations(context.Context, dataprovider.Provider) error { return nil }

// PaymentsForStakeholder returns the payments made by a stakeholder, newest first.
func PaymentsForStakeholder(ctx context.Context, p dataprovider.Provider, stakeholderID uuid.UUID) ([]*Payment, error) {
	cmd, err := dataprovider.NewHouseholdCommandBuilder(
		"SELECT "+paymentColumns+" "+paymentFrom+" WHERE pa.stakeholder_identifier = @stakeholderIdentifier ORDER BY pa.payment_time DESC").
		AddIdentifierParameter("@stakeholderIdentifier", stakeholderID).
		Build()
	if err != nil {
		return nil, err
	}
	payments, err := dataprovider.GetCollection(ctx, p, cmd, func() *Payment { return &Payment{} })
	if err != nil {
		return nil, fmt.Errorf("failed to get payments: %w", err)
	}
	return payments, nil
}

// DeletePaymentsForStakeholder removes the payments made by a stakeholder.
func DeletePaymentsForStakeholder(ctx context.Context, p dataprovider.Provider, stakeholderID uuid.UUID) error {
	cmd, err := dataprovider.NewHouseholdCommandBuilder(
		"DELETE FROM payments WHERE stakeholder_identifier = @stakeholderIdentifier").
		AddIdentifierParameter("@stakeholderIdentifier", stakeholderID).
		Build()
	if err != nil {
		return err
	}
	if _, err := p.Exec(ctx, cmd); err != nil {
		return fmt.Errorf("failed to delete payments: %w", err)
	}
	return nil
}
