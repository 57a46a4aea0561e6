// Package locale renders bot messages in the player's Telegram language.
package locale

import (
	"embed"
	"fmt"
	"io/fs"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"
)

//go:embed messages/*.toml
var messagesFS embed.FS

// Message ids
const (
	MsgWelcome         = "welcome"
	MsgWelcomeReferred = "welcome_referred"
	MsgOpenApp         = "open_app"
	MsgReferralLink    = "referral_link"
	MsgWinner          = "winner"
	MsgHelp            = "help"
)

// Translator holds the message bundle. English is the fallback language.
type Translator struct {
	bundle  *i18n.Bundle
	matcher language.Matcher
}

func New() (*Translator, error) {
	return NewFromFS(messagesFS, "messages")
}

// NewFromFS loads every *.toml file under dir. File names are language tags.
func NewFromFS(fsys fs.FS, dir string) (*Translator, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	files, err := fs.Glob(fsys, dir+"/*.toml")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no message files in %s", dir)
	}
	for _, f := range files {
		if _, err := bundle.LoadMessageFileFS(fsys, f); err != nil {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	return &Translator{
		bundle:  bundle,
		matcher: language.NewMatcher(bundle.LanguageTags()),
	}, nil
}

// Match resolves a Telegram language_code to the closest supported language.
func (t *Translator) Match(code string) language.Tag {
	tag, _, _ := t.matcher.Match(language.Make(code))
	base, _ := tag.Base()
	return language.Make(base.String())
}

// T renders message id in the given language. A missing message renders as its id.
func (t *Translator) T(lang, id string, data map[string]any) string {
	loc := i18n.NewLocalizer(t.bundle, t.Match(lang).String())
	msg, err := loc.Localize(&i18n.LocalizeConfig{MessageID: id, TemplateData: data})
	if err != nil {
		return id
	}
	return msg
}
