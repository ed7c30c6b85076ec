package httpsig

import "fmt"

// ComponentPolicy selects the ordered covered components for a request.
// Signer and verifier must be configured with the same policy: the
// verifier rejects signatures that leave out any component its policy
// selects.
type ComponentPolicy interface {
	Components(r Request) []Component
}

// baseComponents are covered by every policy.
var baseComponents = []Component{ComponentMethod, ComponentTargetURI, ComponentContentType}

type conditionalPolicy struct{}

// ConditionalPolicy covers the base components, then authorization when an
// Authorization header is present, then content-digest and content-length
// when the request has a body. It is the default.
var ConditionalPolicy ComponentPolicy = conditionalPolicy{}

func (conditionalPolicy) Components(r Request) []Component {
	components := make([]Component, 0, 6)
	components = append(components, baseComponents...)

	if r.Header().Get("Authorization") != "" {
		components = append(components, ComponentAuthorization)
	}

	if _, ok := r.Body(); ok {
		components = append(components, ComponentContentDigest, ComponentContentLength)
	}

	return components
}

func (conditionalPolicy) String() string { return "conditional" }

type fixedPolicy struct{}

// FixedPolicy always covers @method, @target-uri and content-type.
var FixedPolicy ComponentPolicy = fixedPolicy{}

func (fixedPolicy) Components(Request) []Component {
	components := make([]Component, len(baseComponents))
	copy(components, baseComponents)

	return components
}

func (fixedPolicy) String() string { return "fixed" }

// PolicyByName returns the policy registered under name ("conditional" or
// "fixed"). An empty name selects ConditionalPolicy.
func PolicyByName(name string) (ComponentPolicy, error) {
	switch name {
	case "", "conditional":
		return ConditionalPolicy, nil
	case "fixed":
		return FixedPolicy, nil
	default:
		return nil, fmt.Errorf("httpsig: unknown component policy %q", name)
	}
}
