package escalation

import (
	"fmt"
	"strings"

	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/MacJediWizard/slawatch/internal/webhooks"
	"github.com/google/uuid"
)

// DefaultNotifyMessage is used when a notify rule has no message.
const DefaultNotifyMessage = "SLA violation escalation"

// ActionConfig is the decoded configuration of one action type. The set of
// implementations is closed: NotifyConfig, ReassignConfig, TransitionConfig
// and WebhookConfig.
type ActionConfig interface {
	ActionType() models.ActionType
	sealed()
}

// NotifyConfig configures a notify action.
type NotifyConfig struct {
	Recipients []uuid.UUID
	// Malformed holds recipient entries that are not valid identifiers.
	Malformed []string
	Message   string
}

// ReassignConfig configures a reassign action. AssigneeID wins over BackupRole
// when it resolves to an active user.
type ReassignConfig struct {
	AssigneeID *uuid.UUID
	BackupRole string
}

// TransitionConfig configures an auto_transition action.
type TransitionConfig struct {
	Status string
}

// WebhookConfig configures a webhook action. Extra holds every other key of
// the raw configuration and is echoed in the payload.
type WebhookConfig struct {
	URL    string
	Secret string
	Extra  map[string]any
}

func (NotifyConfig) ActionType() models.ActionType     { return models.ActionTypeNotify }
func (ReassignConfig) ActionType() models.ActionType   { return models.ActionTypeReassign }
func (TransitionConfig) ActionType() models.ActionType { return models.ActionTypeAutoTransition }
func (WebhookConfig) ActionType() models.ActionType    { return models.ActionTypeWebhook }

func (NotifyConfig) sealed()     {}
func (ReassignConfig) sealed()   {}
func (TransitionConfig) sealed() {}
func (WebhookConfig) sealed()    {}

// DecodeConfig decodes a raw action configuration into the typed config of
// its action type. Every failure wraps ErrInvalidConfig.
func DecodeConfig(actionType models.ActionType, raw map[string]any) (ActionConfig, error) {
	switch actionType {
	case models.ActionTypeNotify:
		return decodeNotify(raw)
	case models.ActionTypeReassign:
		return decodeReassign(raw)
	case models.ActionTypeAutoTransition:
		status := stringValue(raw, "status")
		if status == "" {
			return nil, fmt.Errorf("%w: no target status configured", ErrInvalidConfig)
		}
		return TransitionConfig{Status: status}, nil
	case models.ActionTypeWebhook:
		return decodeWebhook(raw)
	default:
		return nil, fmt.Errorf("%w: unknown action type %q", ErrInvalidConfig, actionType)
	}
}

func decodeNotify(raw map[string]any) (ActionConfig, error) {
	var entries []string
	switch v := raw["recipients"].(type) {
	case string:
		entries = strings.Split(v, ",")
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				entries = append(entries, s)
			} else {
				entries = append(entries, fmt.Sprint(item))
			}
		}
	case []string:
		entries = v
	case nil:
	default:
		return nil, fmt.Errorf("%w: recipients must be a comma separated string", ErrInvalidConfig)
	}

	cfg := NotifyConfig{Message: stringValue(raw, "message")}
	if cfg.Message == "" {
		cfg.Message = DefaultNotifyMessage
	}

	seen := make(map[uuid.UUID]bool)
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, err := uuid.Parse(entry)
		if err != nil {
			cfg.Malformed = append(cfg.Malformed, entry)
			continue
		}
		if !seen[id] {
			seen[id] = true
			cfg.Recipients = append(cfg.Recipients, id)
		}
	}

	if len(cfg.Recipients) == 0 && len(cfg.Malformed) == 0 {
		return nil, fmt.Errorf("%w: no recipients configured", ErrInvalidConfig)
	}
	return cfg, nil
}

func decodeReassign(raw map[string]any) (ActionConfig, error) {
	cfg := ReassignConfig{BackupRole: stringValue(raw, "backup_role")}
	if s := stringValue(raw, "assignee_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%w: assignee_id %q is not a valid identifier", ErrInvalidConfig, s)
		}
		cfg.AssigneeID = &id
	}
	if cfg.AssigneeID == nil && cfg.BackupRole == "" {
		return nil, fmt.Errorf("%w: neither assignee_id nor backup_role configured", ErrInvalidConfig)
	}
	return cfg, nil
}

func decodeWebhook(raw map[string]any) (ActionConfig, error) {
	cfg := WebhookConfig{
		URL:    stringValue(raw, "url"),
		Secret: stringValue(raw, "secret"),
		Extra:  make(map[string]any),
	}
	if err := webhooks.ValidateURL(cfg.URL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	for k, v := range raw {
		if k == "secret" {
			continue
		}
		cfg.Extra[k] = v
	}
	return cfg, nil
}

// ValidateRule checks a rule's action type and configuration. Notify rules
// must name at least one well-formed recipient.
func ValidateRule(actionType models.ActionType, raw map[string]any) error {
	if !actionType.Valid() {
		return fmt.Errorf("%w: unknown action type %q", ErrInvalidConfig, actionType)
	}
	cfg, err := DecodeConfig(actionType, raw)
	if err != nil {
		return err
	}
	if n, ok := cfg.(NotifyConfig); ok && len(n.Malformed) > 0 {
		return fmt.Errorf("%w: malformed recipients %s", ErrInvalidConfig, strings.Join(n.Malformed, ", "))
	}
	return nil
}

func stringValue(raw map[string]any, key string) string {
	v, ok := raw[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
