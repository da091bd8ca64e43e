package refs

// Kind identifies what sort of git reference a name points at
type Kind uint8

const (
	KindUnknown Kind = iota
	KindTag
	KindBranch
)

// String returns the label used in log and error messages
func (k Kind) String() string {
	switch k {
	case KindTag:
		return "tag"
	case KindBranch:
		return "branch"
	default:
		return Unknown
	}
}

// Unknown is the name reported for a working copy whose ref cannot be determined
const Unknown = "<unknown>"

// Target is the ref a fixture should be checked out at.
// It is either a Tag or a Branch; no other implementations exist.
type Target interface {
	Kind() Kind
	String() string
	isTarget()
}

// Tag pins a fixture to an immutable tag
type Tag string

// Branch makes a fixture track the tip of a remote branch
type Branch string

// Kind returns KindTag
func (Tag) Kind() Kind { return KindTag }

func (t Tag) String() string { return string(t) }

func (Tag) isTarget() {}

// Kind returns KindBranch
func (Branch) Kind() Kind { return KindBranch }

func (b Branch) String() string { return string(b) }

func (Branch) isTarget() {}

// Resolve picks the target ref for a fixture. A branch, when given, wins over the tag.
func Resolve(tag string, branch *string) Target {
	if branch != nil {
		return Branch(*branch)
	}
	return Tag(tag)
}

// State is the observed position of a local working copy
type State struct {
	Name string
	Kind Kind
}

// UnknownState is returned when neither a tag nor a branch could be found at HEAD
func UnknownState() State {
	return State{Name: Unknown, Kind: KindUnknown}
}

// Matches reports whether the working copy already sits on target
func (s State) Matches(target Target) bool {
	return s.Name == target.String()
}
