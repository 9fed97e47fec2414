package systemdata

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/otherjamesbrown/foodwaste-data/pkg/dataprovider"
	fwerrors "github.com/otherjamesbrown/foodwaste-data/pkg/errors"
)

const (
	dataProviderColumns = "dp.data_provider_identifier, dp.name, dp.handles_payments, dp.data_source_statement_identifier"

	dataProviderNameSize = 256
)

// DataProvider is an external source of food data or a payment handler.
type DataProvider struct {
	ID                    uuid.UUID
	Name                  string
	HandlesPayments       bool
	DataSourceStatementID uuid.UUID

	translatable
	dataProvider dataprovider.Provider
}

// NewDataProvider creates an in-memory data provider with a fresh data
// source statement identifier.
func NewDataProvider(id uuid.UUID, name string, handlesPayments bool) *DataProvider {
	return &DataProvider{
		ID:                    id,
		Name:                  name,
		HandlesPayments:       handlesPayments,
		DataSourceStatementID: uuid.New(),
	}
}

// DataSourceStatements returns the translations of the data source statement.
func (dp *DataProvider) DataSourceStatements(ctx context.Context) ([]*Translation, error) {
	return dp.loadTranslations(ctx, dp.dataProvider, dp.DataSourceStatementID)
}

// DataSourceStatementAdd attaches a translated data source statement.
func (dp *DataProvider) DataSourceStatementAdd(translation *Translation) {
	translation.OfIdentifier = dp.DataSourceStatementID
	dp.addTranslation(translation)
}

// DataSourceStatement returns the statement in the given culture.
func (dp *DataProvider) DataSourceStatement(ctx context.Context, culture language.Tag) (*Translation, error) {
	statements, err := dp.DataSourceStatements(ctx)
	if err != nil {
		return nil, err
	}
	return selectTranslation(statements, culture), nil
}

func (dp *DataProvider) UniqueID() string { return uniqueID("data_provider", dp.ID) }

func (dp *DataProvider) QueryForID() (dataprovider.Command, error) {
	if err := requireID("data provider", dp.ID); err != nil {
		return dataprovider.Command{}, err
	}
	return dataprovider.NewSystemCommandBuilder(
		"SELECT "+dataProviderColumns+" FROM data_providers AS dp WHERE dp.data_provider_identifier = @dataProviderIdentifier").
		AddIdentifierParameter("@dataProviderIdentifier", dp.ID).
		Build()
}

func (dp *DataProvider) InsertCommand() (dataprovider.Command, error) {
	if err := dp.validate(); err != nil {
		return dataprovider.Command{}, err
	}
	return dp.writeCommand(
		"INSERT INTO data_providers (data_provider_identifier, name, handles_payments, data_source_statement_identifier) VALUES (@dataProviderIdentifier, @name, @handlesPayments, @dataSourceStatementIdentifier)")
}

func (dp *DataProvider) UpdateCommand() (dataprovider.Command, error) {
	if err := dp.validate(); err != nil {
		return dataprovider.Command{}, err
	}
	return dp.writeCommand(
		"UPDATE data_providers SET name = @name, handles_payments = @handlesPayments, data_source_statement_identifier = @dataSourceStatementIdentifier WHERE data_provider_identifier = @dataProviderIdentifier")
}

func (dp *DataProvider) writeCommand(sql string) (dataprovider.Command, error) {
	return dataprovider.NewSystemCommandBuilder(sql).
		AddIdentifierParameter("@dataProviderIdentifier", dp.ID).
		AddVarCharParameter("@name", dp.Name, dataProviderNameSize, false).
		AddBitParameter("@handlesPayments", dp.HandlesPayments).
		AddIdentifierParameter("@dataSourceStatementIdentifier", dp.DataSourceStatementID).
		Build()
}

func (dp *DataProvider) DeleteCommand() (dataprovider.Command, error) {
	if err := requireID("data provider", dp.ID); err != nil {
		return dataprovider.Command{}, err
	}
	return dataprovider.NewSystemCommandBuilder(
		"DELETE FROM data_providers WHERE data_provider_identifier = @dataProviderIdentifier").
		AddIdentifierParameter("@dataProviderIdentifier", dp.ID).
		Build()
}

func (dp *DataProvider) validate() error {
	if err := requireID("data provider", dp.ID); err != nil {
		return err
	}
	if strings.TrimSpace(dp.Name) == "" {
		return fmt.Errorf("data provider %s has no name: %w", dp.ID, fwerrors.ErrValidation)
	}
	if dp.DataSourceStatementID == uuid.Nil {
		return fmt.Errorf("data provider %s has no data source statement: %w", dp.ID, fwerrors.ErrValidation)
	}
	return nil
}

func (dp *DataProvider) MapData(r dataprovider.Reader, p dataprovider.Provider) error {
	var err error
	if dp.ID, err = r.UUID("data_provider_identifier"); err != nil {
		return err
	}
	if dp.Name, err = r.String("name"); err != nil {
		return err
	}
	if dp.HandlesPayments, err = r.Bool("handles_payments"); err != nil {
		return err
	}
	if dp.DataSourceStatementID, err = r.UUID("data_source_statement_identifier"); err != nil {
		return err
	}
	dp.resetTranslations()
	dp.dataProvider = handle(p)
	return nil
}

func (dp *DataProvider) MapRelations(context.Context, dataprovider.Provider) error { return nil }

func (dp *DataProvider) SaveRelations(ctx context.Context, p dataprovider.Provider, _ bool) error {
	return dp.savePendingTranslations(ctx, p, dp.DataSourceStatementID)
}

// DeleteRelations removes the translated data source statements.
func (dp *DataProvider) DeleteRelations(ctx context.Context, p dataprovider.Provider) error {
	return DeleteTranslationsFor(ctx, p, dp.DataSourceStatementID)
}
