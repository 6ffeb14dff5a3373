package appconf

type Environment int

const (
	Development Environment = iota
	Staging
	Production
	Test
)

func (e Environment) String() string {
	switch e {
	case Staging:
		return "staging"
	case Production:
		return "production"
	case Test:
		return "test"
	default:
		return "development"
	}
}

func EnvFlagToEnvironment(env string) Environment {
	switch env {
	case "staging":
		return Staging
	case "production":
		return Production
	case "test":
		return Test
	default:
		return Development
	}
}
