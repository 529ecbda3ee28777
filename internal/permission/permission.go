// Package permission defines the permission check the merge-gate core
// consults, the user directory behind it is host-provided.
package permission

// Actions the core gates.
const (
	ActionEmergencyMerge     = "emergency-merge"
	ActionConfigurationWrite = "configuration-write"
)

// Authorizer answers whether a subject may perform an action on a resource.
type Authorizer interface {
	IsPermitted(subject, action, resource string) bool
}

// StaticAuthorizer grants actions to a fixed set of subjects, populated from
// the configuration file.
type StaticAuthorizer struct {
	grants map[string]map[string]struct{}
}

func NewStaticAuthorizer() *StaticAuthorizer {
	return &StaticAuthorizer{grants: map[string]map[string]struct{}{}}
}

// Grant permits subject to perform action on every resource.
func (a *StaticAuthorizer) Grant(subject, action string) {
	subjects, exist := a.grants[action]
	if !exist {
		subjects = map[string]struct{}{}
		a.grants[action] = subjects
	}

	subjects[subject] = struct{}{}
}

func (a *StaticAuthorizer) IsPermitted(subject, action, _ string) bool {
	_, permitted := a.grants[action][subject]
	return permitted
}
