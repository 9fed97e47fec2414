package dataprovider_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/foodwaste-data/pkg/dataprovider"
	"github.com/otherjamesbrown/foodwaste-data/pkg/dataprovider/providertest"
	fwerrors "github.com/otherjamesbrown/foodwaste-data/pkg/errors"
)

// widget is a minimal proxy recording the hooks the provider calls.
type widget struct {
	ID   uuid.UUID
	Name string

	calls        *[]string
	saveErr      error
	deleteErr    error
	handle       dataprovider.Provider
	sawInserting bool
}

func newWidget(calls *[]string) *widget { return &widget{calls: calls} }

func (w *widget) record(call string) {
	if w.calls != nil {
		*w.calls = append(*w.calls, call)
	}
}

func (w *widget) UniqueID() string { return "widget/" + w.ID.String() }

func (w *widget) QueryForID() (dataprovider.Command, error) {
	if w.ID == uuid.Nil {
		return dataprovider.Command{}, fwerrors.ErrNoIdentifier
	}
	return dataprovider.NewSystemCommandBuilder("SELECT widget_identifier, name FROM widgets WHERE widget_identifier = @id").
		AddIdentifierParameter("@id", w.ID).
		Build()
}

func (w *widget) InsertCommand() (dataprovider.Command, error) {
	return dataprovider.NewSystemCommandBuilder("INSERT INTO widgets (widget_identifier, name) VALUES (@id, @name)").
		AddIdentifierParameter("@id", w.ID).
		AddVarCharParameter("@name", w.Name, 16, false).
		Build()
}

func (w *widget) UpdateCommand() (dataprovider.Command, error) {
	return dataprovider.NewSystemCommandBuilder("UPDATE widgets SET name = @name WHERE widget_identifier = @id").
		AddIdentifierParameter("@id", w.ID).
		AddVarCharParameter("@name", w.Name, 16, false).
		Build()
}

func (w *widget) DeleteCommand() (dataprovider.Command, error) {
	w.record("delete-command")
	return dataprovider.NewSystemCommandBuilder("DELETE FROM widgets WHERE widget_identifier = @id").
		AddIdentifierParameter("@id", w.ID).
		Build()
}

func (w *widget) MapData(r dataprovider.Reader, p dataprovider.Provider) error {
	w.record("map-data")
	var err error
	if w.ID, err = r.UUID("widget_identifier"); err != nil {
		return err
	}
	if w.Name, err = r.String("name"); err != nil {
		return err
	}
	w.handle = p.Clone()
	return nil
}

func (w *widget) MapRelations(ctx context.Context, p dataprovider.Provider) error {
	w.record("map-relations")
	return nil
}

func (w *widget) SaveRelations(ctx context.Context, p dataprovider.Provider, inserting bool) error {
	w.record("save-relations")
	w.sawInserting = inserting
	return w.saveErr
}

func (w *widget) DeleteRelations(ctx context.Context, p dataprovider.Provider) error {
	w.record("delete-relations")
	return w.deleteErr
}

func TestGet(t *testing.T) {
	id := uuid.New()
	fake := providertest.New().OnQueryRows("FROM widgets",
		dataprovider.Record{"widget_identifier": id, "name": "Fridge"})
	var calls []string

	got, err := dataprovider.Get(context.Background(), fake, &widget{ID: id, calls: &calls})

	require.NoError(t, err)
	assert.Equal(t, "Fridge", got.Name)
	assert.Equal(t, []string{"map-data", "map-relations"}, calls)
	assert.Same(t, fake, got.handle)

	queries := fake.Queried("FROM widgets")
	require.Len(t, queries, 1)
	assert.Equal(t, []any{id}, queries[0].Args)
}

func TestGet_NotFound(t *testing.T) {
	fake := providertest.New()

	got, err := dataprovider.Get(context.Background(), fake, &widget{ID: uuid.New()})

	assert.Nil(t, got)
	assert.True(t, fwerrors.IsNotFound(err))
}

func TestGet_NoIdentifier(t *testing.T) {
	fake := providertest.New()

	_, err := dataprovider.Get(context.Background(), fake, &widget{})

	assert.True(t, errors.Is(err, fwerrors.ErrNoIdentifier))
	assert.Empty(t, fake.Queried(""))
}

func TestGetCollection(t *testing.T) {
	fake := providertest.New().OnQueryRows("FROM widgets",
		dataprovider.Record{"widget_identifier": uuid.New(), "name": "A"},
		dataprovider.Record{"widget_identifier": uuid.New(), "name": "B"},
	)
	cmd, err := dataprovider.NewSystemCommandBuilder("SELECT widget_identifier, name FROM widgets").Build()
	require.NoError(t, err)

	widgets, err := dataprovider.GetCollection(context.Background(), fake, cmd, func() *widget { return newWidget(nil) })

	require.NoError(t, err)
	require.Len(t, widgets, 2)
	assert.Equal(t, "A", widgets[0].Name)
	assert.Equal(t, "B", widgets[1].Name)
}

func TestGetCollection_MapError(t *testing.T) {
	fake := providertest.New().OnQueryRows("FROM widgets", dataprovider.Record{"name": "no id"})
	cmd, err := dataprovider.NewSystemCommandBuilder("SELECT name FROM widgets").Build()
	require.NoError(t, err)

	_, err = dataprovider.GetCollection(context.Background(), fake, cmd, func() *widget { return newWidget(nil) })

	assert.True(t, errors.Is(err, dataprovider.ErrColumnNotFound))
}

func TestAdd(t *testing.T) {
	fake := providertest.New()
	var calls []string
	w := &widget{ID: uuid.New(), Name: "Pantry", calls: &calls}

	_, err := dataprovider.Add(context.Background(), fake, w)

	require.NoError(t, err)
	assert.Len(t, fake.Executed("INSERT INTO widgets"), 1)
	assert.Equal(t, []string{"save-relations"}, calls)
	assert.True(t, w.sawInserting)
	assert.Equal(t, 1, fake.Transactions())
}

func TestAdd_RelationFailureRollsBack(t *testing.T) {
	fake := providertest.New()
	w := &widget{ID: uuid.New(), Name: "Pantry", saveErr: errors.New("link failed")}

	_, err := dataprovider.Add(context.Background(), fake, w)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "link failed")
	assert.Equal(t, 1, fake.RolledBack())
}

func TestAdd_InvalidCommand(t *testing.T) {
	fake := providertest.New()
	w := &widget{ID: uuid.New(), Name: "a name that is far too long"}

	_, err := dataprovider.Add(context.Background(), fake, w)

	assert.True(t, fwerrors.IsValidation(err))
	assert.Empty(t, fake.Executed(""))
}

func TestSave(t *testing.T) {
	fake := providertest.New()
	var calls []string
	w := &widget{ID: uuid.New(), Name: "Freezer", calls: &calls}

	_, err := dataprovider.Save(context.Background(), fake, w)

	require.NoError(t, err)
	assert.Len(t, fake.Executed("UPDATE widgets"), 1)
	assert.Equal(t, []string{"save-relations"}, calls)
	assert.False(t, w.sawInserting)
}

func TestSave_NoRowsIsNotFound(t *testing.T) {
	fake := providertest.New().OnExec("UPDATE widgets", func([]any) (int64, error) { return 0, nil })
	var calls []string

	_, err := dataprovider.Save(context.Background(), fake, &widget{ID: uuid.New(), Name: "x", calls: &calls})

	assert.True(t, fwerrors.IsNotFound(err))
	assert.Empty(t, calls)
}

func TestDelete_RelationsFirst(t *testing.T) {
	fake := providertest.New()
	var calls []string

	err := dataprovider.Delete(context.Background(), fake, &widget{ID: uuid.New(), calls: &calls})

	require.NoError(t, err)
	assert.Equal(t, []string{"delete-relations", "delete-command"}, calls)
	assert.Len(t, fake.Executed("DELETE FROM widgets"), 1)
}

func TestDelete_RelationFailureKeepsRow(t *testing.T) {
	fake := providertest.New()
	w := &widget{ID: uuid.New(), deleteErr: errors.New("cascade failed")}

	err := dataprovider.Delete(context.Background(), fake, w)

	require.Error(t, err)
	assert.Empty(t, fake.Executed("DELETE FROM widgets"))
	assert.Equal(t, 1, fake.RolledBack())
}

func TestDelete_NoRowsIsNotFound(t *testing.T) {
	fake := providertest.New().OnExec("DELETE FROM widgets", func([]any) (int64, error) { return 0, nil })

	err := dataprovider.Delete(context.Background(), fake, &widget{ID: uuid.New()})

	assert.True(t, fwerrors.IsNotFound(err))
}
