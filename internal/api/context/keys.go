package context

type Key string

const (
	Claims Key = "claims"
	Token  Key = "token"
	Params Key = "params"
)
