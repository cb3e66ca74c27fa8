// Package i18n translates snippetsync's own command-line output.
//
// It wraps gotext; catalogs are embedded from locales/{lang}/LC_MESSAGES/
// snippetsync.po and selected at startup by Init.
package i18n

import (
	"embed"
	"os"
	"strings"

	"github.com/leonelquinteros/gotext"
)

//go:embed all:locales
var locales embed.FS

const domain = "snippetsync"

var po *gotext.Locale

// Init loads the catalog for lang. An empty lang is taken from LANGUAGE,
// LC_ALL, LC_MESSAGES or LANG, in that order.
func Init(lang string) {
	if lang == "" {
		lang = detectLanguage()
	}

	po = gotext.NewLocaleFSWithPath(lang, locales, "locales")
	po.AddDomain(domain)
	po.SetDomain(domain)
}

// T translates msgid, or returns it unchanged.
func T(msgid string, vars ...interface{}) string {
	if po == nil {
		if len(vars) > 0 {
			return gotext.Printf(msgid, vars...)
		}
		return msgid
	}
	return po.Get(msgid, vars...)
}

// N picks the plural form for n and translates it.
func N(singular, plural string, n int, vars ...interface{}) string {
	if po == nil {
		msg := plural
		if n == 1 {
			msg = singular
		}
		if len(vars) > 0 {
			return gotext.Printf(msg, vars...)
		}
		return msg
	}
	return po.GetN(singular, plural, n, vars...)
}

func detectLanguage() string {
	for _, env := range []string{"LANGUAGE", "LC_ALL", "LC_MESSAGES", "LANG"} {
		val := os.Getenv(env)
		if val == "" {
			continue
		}
		if env == "LANGUAGE" {
			val, _, _ = strings.Cut(val, ":")
		}
		// ru_RU.UTF-8 -> ru_RU, de_DE@euro -> de_DE
		if idx := strings.IndexAny(val, ".@"); idx >= 0 {
			val = val[:idx]
		}
		if val == "C" || val == "POSIX" || val == "" {
			continue
		}
		return val
	}
	return "en"
}
