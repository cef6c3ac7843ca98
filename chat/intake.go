// Package chat handles the chat side of account linking: sign-in commands and
// the verification codes users type back into the conversation.
package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jrsteele09/go-identity-bridge/internal/errors"
	"github.com/jrsteele09/go-identity-bridge/internal/metrics"
	"github.com/jrsteele09/go-identity-bridge/providers"
	"github.com/jrsteele09/go-identity-bridge/sessions"
	"github.com/jrsteele09/go-identity-bridge/verification"
)

// Linker starts a provider sign-in.
type Linker interface {
	Begin(ctx context.Context, addr sessions.Address, provider string) (string, error)
}

// Confirmer checks a verification code.
type Confirmer interface {
	Confirm(ctx context.Context, sessionKey, provider, code string) error
}

// Intake turns chat activities into sign-in, verification and profile actions.
type Intake struct {
	store     sessions.Store
	linker    Linker
	confirmer Confirmer
	registry  *providers.Registry
	metrics   *metrics.Metrics
	codeShape *regexp.Regexp
}

type Option func(*Intake)

// WithCodeLength sets how many digits a message must have to be taken as a code.
func WithCodeLength(n int) Option {
	return func(i *Intake) {
		if n > 0 {
			i.codeShape = regexp.MustCompile(fmt.Sprintf(`^\d{%d}$`, n))
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Intake) { i.metrics = m }
}

func NewIntake(store sessions.Store, linker Linker, confirmer Confirmer, registry *providers.Registry, opts ...Option) *Intake {
	i := &Intake{
		store:     store,
		linker:    linker,
		confirmer: confirmer,
		registry:  registry,
	}
	WithCodeLength(verification.DefaultCodeLength)(i)
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// HandleActivity processes one inbound activity and returns the reply, or nil
// when there is nothing to say.
func (i *Intake) HandleActivity(ctx context.Context, a Activity) (*Activity, error) {
	addr := a.Address()
	if err := addr.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidRequest, err)
	}

	switch a.Type {
	case ActivityInvoke:
		i.metrics.RecordActivity("invoke")
		return i.handleInvoke(ctx, a, addr)
	case ActivityMessage:
		i.metrics.RecordActivity("message")
		return i.handleMessage(ctx, a, addr)
	default:
		i.metrics.RecordActivity("ignored")
		return nil, nil
	}
}

func (i *Intake) handleInvoke(ctx context.Context, a Activity, addr sessions.Address) (*Activity, error) {
	if a.Name != InvokeVerifyState {
		return a.invokeResponse(http.StatusNotImplemented, ""), nil
	}
	code, _ := a.Value["state"].(string)
	text, err := i.confirmCode(ctx, addr, strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}
	return a.invokeResponse(http.StatusOK, text), nil
}

func (i *Intake) handleMessage(ctx context.Context, a Activity, addr sessions.Address) (*Activity, error) {
	text := strings.TrimSpace(a.Text)
	if i.codeShape.MatchString(text) {
		reply, err := i.confirmCode(ctx, addr, text)
		if err != nil {
			return nil, err
		}
		return a.reply(reply), nil
	}

	verb, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)
	var (
		reply string
		err   error
	)
	switch strings.ToLower(verb) {
	case "login", "signin":
		reply, err = i.login(ctx, addr, arg)
	case "logout", "signout":
		reply, err = i.logout(ctx, addr, arg)
	case "profile":
		reply, err = i.profile(ctx, addr, arg)
	default:
		reply = i.help()
	}
	if err != nil {
		return nil, err
	}
	return a.reply(reply), nil
}

// confirmCode confirms the pending provider whose code matches. A code that
// matches none of them is a failed attempt against every pending provider.
func (i *Intake) confirmCode(ctx context.Context, addr sessions.Address, code string) (string, error) {
	s, err := i.store.Load(ctx, addr)
	if errors.Is(err, apperrors.ErrSessionNotFound) {
		return "There is no sign-in waiting for a code. Type \"login <provider>\" to start one.", nil
	}
	if err != nil {
		return "", err
	}

	var pending []providers.Client
	for _, client := range i.registry.All() {
		tok := s.Token(string(client.ID()))
		if !tok.IsPending() {
			continue
		}
		if verification.CodesMatch(tok.VerificationCode, code) {
			pending = []providers.Client{client}
			break
		}
		pending = append(pending, client)
	}
	if len(pending) == 0 {
		return "There is no sign-in waiting for a code. Type \"login <provider>\" to start one.", nil
	}

	throttled := false
	for _, client := range pending {
		err := i.confirmer.Confirm(ctx, s.Key, string(client.ID()), code)
		switch {
		case err == nil:
			return fmt.Sprintf("Thanks! Your %s account is now linked.", client.DisplayName()), nil
		case errors.Is(err, apperrors.ErrTooManyAttempts):
			throttled = true
		case errors.Is(err, apperrors.ErrCodeMismatch), errors.Is(err, apperrors.ErrNoPendingToken):
		default:
			return "", err
		}
	}

	if throttled {
		return "Too many incorrect codes. Start the sign-in again with \"login <provider>\".", nil
	}
	return "That code doesn't match. Please check the code shown after sign-in and try again.", nil
}

func (i *Intake) login(ctx context.Context, addr sessions.Address, arg string) (string, error) {
	client, ok := i.lookup(arg)
	if !ok {
		return i.unknownProvider(arg), nil
	}
	authURL, err := i.linker.Begin(ctx, addr, string(client.ID()))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Sign in to %s here: %s\nWhen you are done, type the code you are shown into this chat.", client.DisplayName(), authURL), nil
}

func (i *Intake) logout(ctx context.Context, addr sessions.Address, arg string) (string, error) {
	client, ok := i.lookup(arg)
	if !ok {
		return i.unknownProvider(arg), nil
	}
	if err := i.store.DeleteToken(ctx, addr.Key(), string(client.ID())); err != nil {
		return "", err
	}
	log.Info().Str("session", addr.Key()).Str("provider", string(client.ID())).Msg("Provider token removed")
	return fmt.Sprintf("You are signed out of %s.", client.DisplayName()), nil
}

func (i *Intake) profile(ctx context.Context, addr sessions.Address, arg string) (string, error) {
	client, ok := i.lookup(arg)
	if !ok {
		return i.unknownProvider(arg), nil
	}
	s, err := i.store.Load(ctx, addr)
	if err != nil && !errors.Is(err, apperrors.ErrSessionNotFound) {
		return "", err
	}
	tok := s.Token(string(client.ID()))
	if !tok.IsActive() {
		return fmt.Sprintf("You have not linked %s yet. Type \"login %s\" first.", client.DisplayName(), client.ID()), nil
	}
	p, err := client.FetchProfile(ctx, tok.AccessToken)
	if err != nil {
		ref := uuid.NewString()
		log.Err(err).Str("ref", ref).Str("provider", string(client.ID())).Msg("Profile fetch failed")
		return fmt.Sprintf("Could not read your %s profile right now (ref %s).", client.DisplayName(), ref), nil
	}
	if p.Email != "" {
		return fmt.Sprintf("%s profile: %s <%s>", client.DisplayName(), p.DisplayName, p.Email), nil
	}
	return fmt.Sprintf("%s profile: %s", client.DisplayName(), p.DisplayName), nil
}

func (i *Intake) lookup(arg string) (providers.Client, bool) {
	for _, c := range i.registry.All() {
		if strings.EqualFold(arg, string(c.ID())) {
			return c, true
		}
	}
	return nil, false
}

func (i *Intake) providerNames() string {
	var names []string
	for _, c := range i.registry.All() {
		names = append(names, string(c.ID()))
	}
	if len(names) == 0 {
		return "(none configured)"
	}
	return strings.Join(names, ", ")
}

func (i *Intake) unknownProvider(arg string) string {
	if arg == "" {
		return "Which provider? Available: " + i.providerNames()
	}
	return fmt.Sprintf("Unknown provider %q. Available: %s", arg, i.providerNames())
}

func (i *Intake) help() string {
	return "Commands:\n" +
		"  login <provider>   link an account\n" +
		"  logout <provider>  unlink an account\n" +
		"  profile <provider> show a linked profile\n" +
		"Providers: " + i.providerNames()
}
