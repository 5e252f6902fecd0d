// File: internal/session/inject.go
package session

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aduanet/aduanet-cli/internal/config"
)

// Injector fills the popup login form and submits it. Every field
// assignment happens strictly before submission; a failure on any
// assignment aborts without submitting.
type Injector struct {
	portal config.PortalConfig
}

func NewInjector(portal config.PortalConfig) *Injector {
	return &Injector{portal: portal}
}

// Inject types the credentials, replicates the extracted hidden-field
// payload, and submits the form. Payload keys matching the credential
// inputs are skipped so typed values are never clobbered. Remaining keys
// are applied in sorted order for reproducible runs.
func (inj *Injector) Inject(ctx context.Context, page Page, creds config.Credentials, fields FieldSet) error {
	if !fields.Extracted {
		return fmt.Errorf("inject: hidden-field extraction has not run")
	}

	if err := page.TypeText(ctx, inj.portal.UsernameSelector, creds.Username); err != nil {
		return fmt.Errorf("inject username: %w", err)
	}
	if err := page.TypeText(ctx, inj.portal.PasswordSelector, creds.Password); err != nil {
		return fmt.Errorf("inject password: %w", err)
	}

	names := make([]string, 0, len(fields.Values))
	for name := range fields.Values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if inj.isCredentialField(name) {
			continue
		}
		if err := page.SetFieldByName(ctx, inj.portal.FormSelector, name, fields.Values[name]); err != nil {
			return fmt.Errorf("inject field %q: %w", name, err)
		}
	}

	if err := page.SubmitForm(ctx, inj.portal.FormSelector); err != nil {
		return fmt.Errorf("inject submit: %w", err)
	}
	return nil
}

// isCredentialField guards against portals that render the credential
// inputs as type=hidden during early page construction.
func (inj *Injector) isCredentialField(name string) bool {
	return selectorTargetsName(inj.portal.UsernameSelector, name) ||
		selectorTargetsName(inj.portal.PasswordSelector, name)
}

// selectorTargetsName reports whether a CSS selector of the common
// [name='x'] shape refers to the given field name.
func selectorTargetsName(sel, name string) bool {
	for _, quote := range []string{"'", `"`} {
		if strings.Contains(sel, "[name="+quote+name+quote+"]") {
			return true
		}
	}
	return false
}
