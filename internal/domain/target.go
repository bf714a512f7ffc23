package domain

import "strings"

// Standard action names. Targets may permit any subset, or custom names.
const (
	ActionDeploy  = "deploy"
	ActionRestart = "restart"
	ActionBackup  = "backup"
	ActionMigrate = "migrate"
	ActionStatus  = "status"
)

// AccessRef points at the credentials used to reach a target. Only the
// executor and prober look inside it.
type AccessRef struct {
	User     string `yaml:"user" json:"-"`
	KeyPath  string `yaml:"key_path" json:"-"`
	Password string `yaml:"password" json:"-"` // "enc:" prefix marks AES-GCM ciphertext, see pkg/utils/crypto
}

type DeploymentTarget struct {
	ID       string            `yaml:"id" json:"id"`
	Host     string            `yaml:"host" json:"host"`
	Port     int               `yaml:"port" json:"port,omitempty"`
	Role     string            `yaml:"role" json:"role"`
	Specs    string            `yaml:"specs" json:"specs,omitempty"`
	Actions  []string          `yaml:"actions" json:"actions"`
	Commands map[string]string `yaml:"commands" json:"-"`
	Access   AccessRef         `yaml:"access" json:"-"`
}

// NormalizeAction is the canonical form of an action name: trimmed and lower case.
func NormalizeAction(action string) string {
	return strings.ToLower(strings.TrimSpace(action))
}

// Allows reports whether action, in any case, is in the target's action list.
// Actions are normalized when a roster is loaded.
func (t *DeploymentTarget) Allows(action string) bool {
	action = NormalizeAction(action)
	for _, a := range t.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Address returns the host the target is reached on, falling back to its id.
func (t *DeploymentTarget) Address() string {
	if t.Host != "" {
		return t.Host
	}
	return t.ID
}

func (t *DeploymentTarget) SSHPort() int {
	if t.Port == 0 {
		return 22
	}
	return t.Port
}
