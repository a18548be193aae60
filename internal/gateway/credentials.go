package gateway

import (
	"net/http"
	"strings"

	"github.com/nulzo/llm-proxy/pkg/api"
)

// CredentialSource yields a request-scoped credential for a provider, or ""
// when the caller did not supply one.
type CredentialSource interface {
	Credential(p api.Provider) string
}

// StaticCredentials maps providers to fixed keys. The dispatcher uses one to
// hold the configured defaults.
type StaticCredentials map[api.Provider]string

func (s StaticCredentials) Credential(p api.Provider) string {
	return strings.TrimSpace(s[p])
}

// HeaderCredentials reads X-{PROVIDER}-API-KEY from inbound request headers.
type HeaderCredentials http.Header

func (h HeaderCredentials) Credential(p api.Provider) string {
	return strings.TrimSpace(http.Header(h).Get(p.CredentialHeader()))
}
