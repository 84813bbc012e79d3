package gateway

// Consumer is the gateway's representation of an API caller. The portal
// keeps username equal to the local user id, which makes lookup-by-user
// possible without a separate index.
type Consumer struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	CustomID  string   `json:"custom_id,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	CreatedAt int64    `json:"created_at,omitempty"`
}

type CreateConsumerRequest struct {
	Username string   `json:"username"`
	CustomID string   `json:"custom_id,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// KeyAuth is a key-auth credential. Key carries the plaintext secret and is
// populated only in the creation response; listings omit it.
type KeyAuth struct {
	ID        string   `json:"id"`
	Key       string   `json:"key,omitempty"`
	Consumer  Ref      `json:"consumer"`
	Tags      []string `json:"tags,omitempty"`
	CreatedAt int64    `json:"created_at"`
}

type Ref struct {
	ID string `json:"id"`
}

type keyAuthList struct {
	Data []KeyAuth `json:"data"`
	Next *string   `json:"next"`
}
