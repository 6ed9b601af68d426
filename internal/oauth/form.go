package oauth

import (
	"html/template"
	"io"
)

// LoginFormData is everything the login page needs: the visible prompt plus
// the hidden authorization request context that must survive the round trip.
// ClientName and Error may contain attacker-controlled text; the template
// engine escapes every interpolation.
type LoginFormData struct {
	ClientID      string
	RedirectURI   string
	CodeChallenge string
	State         string
	Scope         string
	ClientName    string
	Error         string
}

var loginFormTemplate = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Sign in to Nextcloud</title>
  <style>
    body { font-family: sans-serif; max-width: 24rem; margin: 4rem auto; padding: 0 1rem; }
    label { display: block; margin-top: 1rem; }
    input[type=text], input[type=password] { width: 100%; padding: 0.5rem; margin-top: 0.25rem; }
    button { margin-top: 1.5rem; padding: 0.5rem 1.5rem; }
    .error { color: #b00020; margin-top: 1rem; }
  </style>
</head>
<body>
  <h1>Sign in to Nextcloud</h1>
  {{if .ClientName}}<p><strong>{{.ClientName}}</strong> is requesting access to your Nextcloud account.</p>{{else}}<p>Client <strong>{{.ClientID}}</strong> is requesting access to your Nextcloud account.</p>{{end}}
  {{if .Error}}<p class="error">{{.Error}}</p>{{end}}
  <form method="post" action="/auth/login">
    <input type="hidden" name="client_id" value="{{.ClientID}}">
    <input type="hidden" name="redirect_uri" value="{{.RedirectURI}}">
    <input type="hidden" name="code_challenge" value="{{.CodeChallenge}}">
    <input type="hidden" name="state" value="{{.State}}">
    <input type="hidden" name="scope" value="{{.Scope}}">
    <label>Username
      <input type="text" name="username" autocomplete="username" autofocus>
    </label>
    <label>Password
      <input type="password" name="password" autocomplete="current-password">
    </label>
    <button type="submit">Sign in</button>
  </form>
</body>
</html>
`))

// RenderLoginForm writes the login page HTML. It is a pure function of its
// input; output escaping is handled by html/template.
func RenderLoginForm(w io.Writer, data LoginFormData) error {
	return loginFormTemplate.Execute(w, data)
}
