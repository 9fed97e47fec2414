// Package systemdata provides the data proxies for food-waste system data:
// translations, data providers, foreign keys, food groups and food items.
//
// Proxies mapped from a row keep a provider handle and load their relations
// on first access. Proxies built in memory have no handle and only return
// what has been assigned to them.
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
	translationInfoColumns = "ti.translation_info_identifier, ti.culture_name"
	translationColumns     = "t.translation_identifier, t.of_identifier, t.value, " + translationInfoColumns
	translationFrom        = "FROM translations AS t JOIN translation_infos AS ti ON ti.translation_info_identifier = t.translation_info_identifier"

	cultureNameSize = 16
)

func uniqueID(kind string, id uuid.UUID) string {
	return kind + "/" + id.String()
}

// handle returns the provider a mapped proxy keeps for lazy loading.
func handle(p dataprovider.Provider) dataprovider.Provider {
	if p == nil {
		return nil
	}
	return p.Clone()
}

func requireID(kind string, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("%s: %w", kind, fwerrors.ErrNoIdentifier)
	}
	return nil
}

// ==================== TranslationInfo ====================

// TranslationInfo describes a culture translations can be written in.
type TranslationInfo struct {
	ID          uuid.UUID
	CultureName string
}

// NewTranslationInfo creates an in-memory translation info.
func NewTranslationInfo(id uuid.UUID, cultureName string) *TranslationInfo {
	return &TranslationInfo{ID: id, CultureName: cultureName}
}

// Tag parses the culture name as a BCP 47 language tag.
func (ti *TranslationInfo) Tag() (language.Tag, error) {
	tag, err := language.Parse(ti.CultureName)
	if err != nil {
		return language.Und, fmt.Errorf("culture name %q: %v: %w", ti.CultureName, err, fwerrors.ErrValidation)
	}
	return tag, nil
}

func (ti *TranslationInfo) UniqueID() string { return uniqueID("translation_info", ti.ID) }

func (ti *TranslationInfo) QueryForID() (dataprovider.Command, error) {
	if err := requireID("translation info", ti.ID); err != nil {
		return dataprovider.Command{}, err
	}
	return dataprovider.NewSystemCommandBuilder(
		"SELECT "+translationInfoColumns+" FROM translation_infos AS ti WHERE ti.translation_info_identifier = @translationInfoIdentifier").
		AddIdentifierParameter("@translationInfoIdentifier", ti.ID).
		Build()
}

func (ti *TranslationInfo) InsertCommand() (dataprovider.Command, error) {
	if err := ti.validate(); err != nil {
		return dataprovider.Command{}, err
	}
	return dataprovider.NewSystemCommandBuilder(
		"INSERT INTO translation_infos (translation_info_identifier, culture_name) VALUES (@translationInfoIdentifier, @cultureName)").
		AddIdentifierParameter("@translationInfoIdentifier", ti.ID).
		AddVarCharParameter("@cultureName", ti.CultureName, cultureNameSize, false).
		Build()
}

func (ti *TranslationInfo) UpdateCommand() (dataprovider.Command, error) {
	if err := ti.validate(); err != nil {
		return dataprovider.Command{}, err
	}
	return dataprovider.NewSystemCommandBuilder(
		"UPDATE translation_infos SET culture_name = @cultureName WHERE translation_info_identifier = @translationInfoIdentifier").
		AddIdentifierParameter("@translationInfoIdentifier", ti.ID).
		AddVarCharParameter("@cultureName", ti.CultureName, cultureNameSize, false).
		Build()
}

func (ti *TranslationInfo) DeleteCommand() (dataprovider.Command, error) {
	if err := requireID("translation info", ti.ID); err != nil {
		return dataprovider.Command{}, err
	}
	return dataprovider.NewSystemCommandBuilder(
		"DELETE FROM translation_infos WHERE translation_info_identifier = @translationInfoIdentifier").
		AddIdentifierParameter("@translationInfoIdentifier", ti.ID).
		Build()
}

func (ti *TranslationInfo) validate() error {
	if err := requireID("translation info", ti.ID); err != nil {
		return err
	}
	_, err := ti.Tag()
	return err
}

func (ti *TranslationInfo) MapData(r dataprovider.Reader, _ dataprovider.Provider) error {
	var err error
	if ti.ID, err = r.UUID("translation_info_identifier"); err != nil {
		return err
	}
	ti.CultureName, err = r.String("culture_name")
	return err
}

func (ti *TranslationInfo) MapRelations(context.Context, dataprovider.Provider) error { return nil }

func (ti *TranslationInfo) SaveRelations(context.Context, dataprovider.Provider, bool) error {
	return nil
}

// DeleteRelations removes every translation written in this culture.
func (ti *TranslationInfo) DeleteRelations(ctx context.Context, p dataprovider.Provider) error {
	cmd, err := dataprovider.NewSystemCommandBuilder(
		"DELETE FROM translations WHERE translation_info_identifier = @translationInfoIdentifier").
		AddIdentifierParameter("@translationInfoIdentifier", ti.ID).
		Build()
	if err != nil {
		return err
	}
	_, err = p.Exec(ctx, cmd)
	return err
}

// ==================== Translation ====================

// Translation is a localised value attached to another domain object.
type Translation struct {
	ID           uuid.UUID
	OfIdentifier uuid.UUID
	Info         *TranslationInfo
	Value        string
}

// NewTranslation creates an in-memory translation with a fresh identifier.
func NewTranslation(of uuid.UUID, info *TranslationInfo, value string) *Translation {
	return &Translation{ID: uuid.New(), OfIdentifier: of, Info: info, Value: value}
}

func (t *Translation) UniqueID() string { return uniqueID("translation", t.ID) }

func (t *Translation) QueryForID() (dataprovider.Command, error) {
	if err := requireID("translation", t.ID); err != nil {
		return dataprovider.Command{}, err
	}
	return dataprovider.NewSystemCommandBuilder(
		"SELECT "+translationColumns+" "+translationFrom+" WHERE t.translation_identifier = @translationIdentifier").
		AddIdentifierParameter("@translationIdentifier", t.ID).
		Build()
}

func (t *Translation) InsertCommand() (dataprovider.Command, error) {
	if err := t.validate(); err != nil {
		return dataprovider.Command{}, err
	}
	return dataprovider.NewSystemCommandBuilder(
		"INSERT INTO translations (translation_identifier, of_identifier, translation_info_identifier, value) VALUES (@translationIdentifier, @ofIdentifier, @translationInfoIdentifier, @value)").
		AddIdentifierParameter("@translationIdentifier", t.ID).
		AddIdentifierParameter("@ofIdentifier", t.OfIdentifier).
		AddIdentifierParameter("@translationInfoIdentifier", t.Info.ID).
		AddTextParameter("@value", &t.Value).
		Build()
}

func (t *Translation) UpdateCommand() (dataprovider.Command, error) {
	if err := t.validate(); err != nil {
		return dataprovider.Command{}, err
	}
	return dataprovider.NewSystemCommandBuilder(
		"UPDATE translations SET of_identifier = @ofIdentifier, translation_info_identifier = @translationInfoIdentifier, value = @value WHERE translation_identifier = @translationIdentifier").
		AddIdentifierParameter("@translationIdentifier", t.ID).
		AddIdentifierParameter("@ofIdentifier", t.OfIdentifier).
		AddIdentifierParameter("@translationInfoIdentifier", t.Info.ID).
		AddTextParameter("@value", &t.Value).
		Build()
}

func (t *Translation) DeleteCommand() (dataprovider.Command, error) {
	if err := requireID("translation", t.ID); err != nil {
		return dataprovider.Command{}, err
	}
	return dataprovider.NewSystemCommandBuilder(
		"DELETE FROM translations WHERE translation_identifier = @translationIdentifier").
		AddIdentifierParameter("@translationIdentifier", t.ID).
		Build()
}

func (t *Translation) validate() error {
	if err := requireID("translation", t.ID); err != nil {
		return err
	}
	if t.OfIdentifier == uuid.Nil {
		return fmt.Errorf("translation %s is not attached to anything: %w", t.ID, fwerrors.ErrValidation)
	}
	if t.Info == nil || t.Info.ID == uuid.Nil {
		return fmt.Errorf("translation %s has no translation info: %w", t.ID, fwerrors.ErrValidation)
	}
	if strings.TrimSpace(t.Value) == "" {
		return fmt.Errorf("translation %s has no value: %w", t.ID, fwerrors.ErrValidation)
	}
	return nil
}

func (t *Translation) MapData(r dataprovider.Reader, p dataprovider.Provider) error {
	var err error
	if t.ID, err = r.UUID("translation_identifier"); err != nil {
		return err
	}
	if t.OfIdentifier, err = r.UUID("of_identifier"); err != nil {
		return err
	}
	if t.Value, err = r.String("value"); err != nil {
		return err
	}
	t.Info = &TranslationInfo{}
	return t.Info.MapData(r, p)
}

func (t *Translation) MapRelations(context.Context, dataprovider.Provider) error { return nil }

func (t *Translation) SaveRelations(context.Context, dataprovider.Provider, bool) error {
	return nil
}

func (t *Translation) DeleteRelations(context.Context, dataprovider.Provider) error { return nil }

// TranslationsFor returns every translation attached to the given identifier.
func TranslationsFor(ctx context.Context, p dataprovider.Provider, of uuid.UUID) ([]*Translation, error) {
	cmd, err := dataprovider.NewSystemCommandBuilder(
		"SELECT "+translationColumns+" "+translationFrom+" WHERE t.of_identifier = @ofIdentifier ORDER BY ti.culture_name").
		AddIdentifierParameter("@ofIdentifier", of).
		Build()
	if err != nil {
		return nil, err
	}
	translations, err := dataprovider.GetCollection(ctx, p, cmd, func() *Translation { return &Translation{} })
	if err != nil {
		return nil, fmt.Errorf("failed to get translations: %w", err)
	}
	return translations, nil
}

// DeleteTranslationsFor removes every translation attached to the given identifier.
func DeleteTranslationsFor(ctx context.Context, p dataprovider.Provider, of uuid.UUID) error {
	cmd, err := dataprovider.NewSystemCommandBuilder(
		"DELETE FROM translations WHERE of_identifier = @ofIdentifier").
		AddIdentifierParameter("@ofIdentifier", of).
		Build()
	if err != nil {
		return err
	}
	if _, err := p.Exec(ctx, cmd); err != nil {
		return fmt.Errorf("failed to delete translations: %w", err)
	}
	return nil
}

// ==================== Translatable ====================

// translatable holds the lazily loaded translations of a domain object.
// Translations added or changed in memory are written by the owner's
// SaveRelations.
type translatable struct {
	translations        []*Translation
	translationsLoaded  bool
	pendingTranslations []*Translation
	changedTranslations []*Translation
}

func (t *translatable) resetTranslations() {
	t.translations = nil
	t.translationsLoaded = false
	t.pendingTranslations = nil
	t.changedTranslations = nil
}

func (t *translatable) loadTranslations(ctx context.Context, p dataprovider.Provider, of uuid.UUID) ([]*Translation, error) {
	if t.translationsLoaded || p == nil || of == uuid.Nil {
		return t.translations, nil
	}
	translations, err := TranslationsFor(ctx, p, of)
	if err != nil {
		return nil, err
	}
	t.translations = append(translations, t.pendingTranslations...)
	t.translationsLoaded = true
	return t.translations, nil
}

func (t *translatable) addTranslation(translation *Translation) {
	for _, existing := range t.translations {
		if existing.ID == translation.ID {
			return
		}
	}
	t.translations = append(t.translations, translation)
	t.pendingTranslations = append(t.pendingTranslations, translation)
}

// setTranslation writes value in the culture of info. An existing
// translation in that culture is marked changed; otherwise a new one is
// attached.
func (t *translatable) setTranslation(ctx context.Context, p dataprovider.Provider, of uuid.UUID, info *TranslationInfo, value string) error {
	translations, err := t.loadTranslations(ctx, p, of)
	if err != nil {
		return err
	}
	for _, translation := range translations {
		if translation.Info == nil || translation.Info.ID != info.ID {
			continue
		}
		if translation.Value == value {
			return nil
		}
		translation.Value = value
		if !containsTranslation(t.pendingTranslations, translation) && !containsTranslation(t.changedTranslations, translation) {
			t.changedTranslations = append(t.changedTranslations, translation)
		}
		return nil
	}
	t.addTranslation(NewTranslation(of, info, value))
	return nil
}

func containsTranslation(translations []*Translation, translation *Translation) bool {
	for _, existing := range translations {
		if existing.ID == translation.ID {
			return true
		}
	}
	return false
}

func (t *translatable) savePendingTranslations(ctx context.Context, p dataprovider.Provider, of uuid.UUID) error {
	for _, translation := range t.pendingTranslations {
		translation.OfIdentifier = of
		if _, err := dataprovider.Add(ctx, p, translation); err != nil {
			return fmt.Errorf("failed to add translation: %w", err)
		}
	}
	t.pendingTranslations = nil

	for _, translation := range t.changedTranslations {
		if _, err := dataprovider.Save(ctx, p, translation); err != nil {
			return fmt.Errorf("failed to update translation %s: %w", translation.ID, err)
		}
	}
	t.changedTranslations = nil
	return nil
}

// selectTranslation picks the translation for culture: an exact culture
// match first, then one sharing the base language, then the first one.
func selectTranslation(translations []*Translation, culture language.Tag) *Translation {
	if len(translations) == 0 {
		return nil
	}

	want := strings.ToLower(culture.String())
	for _, t := range translations {
		if t.Info != nil && strings.ToLower(t.Info.CultureName) == want {
			return t
		}
	}

	base, _ := culture.Base()
	for _, t := range translations {
		if t.Info == nil {
			continue
		}
		tag, err := t.Info.Tag()
		if err != nil {
			continue
		}
		if b, _ := tag.Base(); b == base {
			return t
		}
	}
	return translations[0]
}

func (t *translatable) translate(ctx context.Context, p dataprovider.Provider, of uuid.UUID, culture language.Tag) (*Translation, error) {
	translations, err := t.loadTranslations(ctx, p, of)
	if err != nil {
		return nil, err
	}
	return selectTranslation(translations, culture), nil
}
