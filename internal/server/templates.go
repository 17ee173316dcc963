package server

import (
	_ "embed"
	"html/template"
	"net/http"

	"github.com/SrujanaJ313/claimant-gateway/internal/tokens"
)

//go:embed templates/portal.html
var portalTemplateHTML string

//go:embed templates/signed_out.html
var signedOutTemplateHTML string

//go:embed templates/retry.html
var retryTemplateHTML string

var portalTemplate = template.Must(template.New("portal").Parse(portalTemplateHTML))
var signedOutTemplate = template.Must(template.New("signed_out").Parse(signedOutTemplateHTML))
var retryTemplate = template.Must(template.New("retry").Parse(retryTemplateHTML))

// PortalPageData is the data for the claimant landing page.
type PortalPageData struct {
	Name  string
	Email string
	Roles []string
}

// RetryPageData is the data for the sign-in problem screen.
type RetryPageData struct {
	Message string
}

func renderPortal(w http.ResponseWriter, user *tokens.UserProfile) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = portalTemplate.Execute(w, PortalPageData{
		Name:  user.Name,
		Email: user.Email,
		Roles: user.Roles,
	})
}

func renderSignedOut(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = signedOutTemplate.Execute(w, nil)
}

func renderRetry(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = retryTemplate.Execute(w, RetryPageData{Message: message})
}
