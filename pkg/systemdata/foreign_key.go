package systemdata

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/foodwaste-data/pkg/dataprovider"
	fwerrors "github.com/otherjamesbrown/foodwaste-data/pkg/errors"
)

// Foreign key owner types.
const (
	ForeignKeyForFoodGroup = "FoodGroup"
	ForeignKeyForFoodItem  = "FoodItem"
)

const (
	foreignKeyColumns = "fk.foreign_key_identifier, fk.foreign_key_for_identifier, fk.foreign_key_for_type, fk.foreign_key_value, " + dataProviderColumns
	foreignKeyFrom    = "FROM foreign_keys AS fk JOIN data_providers AS dp ON dp.data_provider_identifier = fk.data_provider_identifier"

	foreignKeyTypeSize  = 128
	foreignKeyValueSize = 128
)

// ForeignKey maps a domain object to its key at an external data provider.
type ForeignKey struct {
	ID                uuid.UUID
	DataProvider      *DataProvider
	ForeignKeyForID   uuid.UUID
	ForeignKeyForType string
	Value             string
}

// NewForeignKey creates an in-memory foreign key with a fresh identifier.
func NewForeignKey(dp *DataProvider, forID uuid.UUID, forType, value string) *ForeignKey {
	return &ForeignKey{
		ID:                uuid.New(),
		DataProvider:      dp,
		ForeignKeyForID:   forID,
		ForeignKeyForType: forType,
		Value:             value,
	}
}

func (fk *ForeignKey) UniqueID() string { return uniqueID("foreign_key", fk.ID) }

func (fk *ForeignKey) QueryForID() (dataprovider.Command, error) {
	if err := requireID("foreign key", fk.ID); err != nil {
		return dataprovider.Command{}, err
	}
	return dataprovider.NewSystemCommandBuilder(
		"SELECT "+foreignKeyColumns+" "+foreignKeyFrom+" WHERE fk.foreign_key_identifier = @foreignKeyIdentifier").
		AddIdentifierParameter("@foreignKeyIdentifier", fk.ID).
		Build()
}

func (fk *ForeignKey) InsertCommand() (dataprovider.Command, error) {
	if err := fk.validate(); err != nil {
		return dataprovider.Command{}, err
	}
	return fk.writeCommand(
		"INSERT INTO foreign_keys (foreign_key_identifier, data_provider_identifier, foreign_key_for_identifier, foreign_key_for_type, foreign_key_value) VALUES (@foreignKeyIdentifier, @dataProviderIdentifier, @foreignKeyForIdentifier, @foreignKeyForType, @foreignKeyValue)")
}

func (fk *ForeignKey) UpdateCommand() (dataprovider.Command, error) {
	if err := fk.validate(); err != nil {
		return dataprovider.Command{}, err
	}
	return fk.writeCommand(
		"UPDATE foreign_keys SET data_provider_identifier = @dataProviderIdentifier, foreign_key_for_identifier = @foreignKeyForIdentifier, foreign_key_for_type = @foreignKeyForType, foreign_key_value = @foreignKeyValue WHERE foreign_key_identifier = @foreignKeyIdentifier")
}

func (fk *ForeignKey) writeCommand(sql string) (dataprovider.Command, error) {
	return dataprovider.NewSystemCommandBuilder(sql).
		AddIdentifierParameter("@foreignKeyIdentifier", fk.ID).
		AddIdentifierParameter("@dataProviderIdentifier", fk.DataProvider.ID).
		AddIdentifierParameter("@foreignKeyForIdentifier", fk.ForeignKeyForID).
		AddVarCharParameter("@foreignKeyForType", fk.ForeignKeyForType, foreignKeyTypeSize, false).
		AddVarCharParameter("@foreignKeyValue", fk.Value, foreignKeyValueSize, false).
		Build()
}

func (fk *ForeignKey) DeleteCommand() (dataprovider.Command, error) {
	if err := requireID("foreign key", fk.ID); err != nil {
		return dataprovider.Command{}, err
	}
	return dataprovider.NewSystemCommandBuilder(
		"DELETE FROM foreign_keys WHERE foreign_key_identifier = @foreignKeyIdentifier").
		AddIdentifierParameter("@foreignKeyIdentifier", fk.ID).
		Build()
}

func (fk *ForeignKey) validate() error {
	if err := requireID("foreign key", fk.ID); err != nil {
		return err
	}
	if fk.DataProvider == nil || fk.DataProvider.ID == uuid.Nil {
		return fmt.Errorf("foreign key %s has no data provider: %w", fk.ID, fwerrors.ErrValidation)
	}
	if fk.ForeignKeyForID == uuid.Nil {
		return fmt.Errorf("foreign key %s is not attached to anything: %w", fk.ID, fwerrors.ErrValidation)
	}
	if strings.TrimSpace(fk.ForeignKeyForType) == "" {
		return fmt.Errorf("foreign key %s has no owner type: %w", fk.ID, fwerrors.ErrValidation)
	}
	if strings.TrimSpace(fk.Value) == "" {
		return fmt.Errorf("foreign key %s has no value: %w", fk.ID, fwerrors.ErrValidation)
	}
	return nil
}

func (fk *ForeignKey) MapData(r dataprovider.Reader, p dataprovider.Provider) error {
	var err error
	if fk.ID, err = r.UUID("foreign_key_identifier"); err != nil {
		return err
	}
	if fk.ForeignKeyForID, err = r.UUID("foreign_key_for_identifier"); err != nil {
		return err
	}
	if fk.ForeignKeyForType, err = r.String("foreign_key_for_type"); err != nil {
		return err
	}
	if fk.Value, err = r.String("foreign_key_value"); err != nil {
		return err
	}
	fk.DataProvider = &DataProvider{}
	return fk.DataProvider.MapData(r, p)
}

func (fk *ForeignKey) MapRelations(context.Context, dataprovider.Provider) error { return nil }

func (fk *ForeignKey) SaveRelations(context.Context, dataprovider.Provider, bool) error { return nil }

func (fk *ForeignKey) DeleteRelations(context.Context, dataprovider.Provider) error { return nil }

// ForeignKeysFor returns the foreign keys attached to the given identifier.
func ForeignKeysFor(ctx context.Context, p dataprovider.Provider, forID uuid.UUID) ([]*ForeignKey, error) {
	cmd, err := dataprovider.NewSystemCommandBuilder(
		"SELECT "+foreignKeyColumns+" "+foreignKeyFrom+" WHERE fk.foreign_key_for_identifier = @foreignKeyForIdentifier ORDER BY dp.name, fk.foreign_key_value").
		AddIdentifierParameter("@foreignKeyForIdentifier", forID).
		Build()
	if err != nil {
		return nil, err
	}
	keys, err := dataprovider.GetCollection(ctx, p, cmd, func() *ForeignKey { return &ForeignKey{} })
	if err != nil {
		return nil, fmt.Errorf("failed to get foreign keys: %w", err)
	}
	return keys, nil
}

// DeleteForeignKeysFor removes the foreign keys attached to the given identifier.
func DeleteForeignKeysFor(ctx context.Context, p dataprovider.Provider, forID uuid.UUID) error {
	cmd, err := dataprovider.NewSystemCommandBuilder(
		"DELETE FROM foreign_keys WHERE foreign_key_for_identifier = @foreignKeyForIdentifier").
		AddIdentifierParameter("@foreignKeyForIdentifier", forID).
		Build()
	if err != nil {
		return err
	}
	if _, err := p.Exec(ctx, cmd); err != nil {
		return fmt.Errorf("failed to delete foreign keys: %w", err)
	}
	return nil
}

// foreignKeyed holds the lazily loaded foreign keys of a domain object.
type foreignKeyed struct {
	foreignKeys        []*ForeignKey
	foreignKeysLoaded  bool
	pendingForeignKeys []*ForeignKey
}

func (f *foreignKeyed) resetForeignKeys() {
	f.foreignKeys = nil
	f.foreignKeysLoaded = false
	f.pendingForeignKeys = nil
}

func (f *foreignKeyed) loadForeignKeys(ctx context.Context, p dataprovider.Provider, forID uuid.UUID) ([]*ForeignKey, error) {
	if f.foreignKeysLoaded || p == nil || forID == uuid.Nil {
		return f.foreignKeys, nil
	}
	keys, err := ForeignKeysFor(ctx, p, forID)
	if err != nil {
		return nil, err
	}
	f.foreignKeys = append(keys, f.pendingForeignKeys...)
	f.foreignKeysLoaded = true
	return f.foreignKeys, nil
}

func (f *foreignKeyed) addForeignKey(key *ForeignKey) {
	for _, existing := range f.foreignKeys {
		if existing.ID == key.ID {
			return
		}
	}
	f.foreignKeys = append(f.foreignKeys, key)
	f.pendingForeignKeys = append(f.pendingForeignKeys, key)
}

func (f *foreignKeyed) savePendingForeignKeys(ctx context.Context, p dataprovider.Provider, forID uuid.UUID, forType string) error {
	for _, key := range f.pendingForeignKeys {
		key.ForeignKeyForID = forID
		key.ForeignKeyForType = forType
		if _, err := dataprovider.Add(ctx, p, key); err != nil {
			return fmt.Errorf("failed to add foreign key: %w", err)
		}
	}
	f.pendingForeignKeys = nil
	return nil
}
