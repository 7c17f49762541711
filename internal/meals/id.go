package meals

import "github.com/google/uuid"

type uuidProvider struct{}

// NewUUIDProvider constructs a PhotoKeyProvider that issues UUIDv7
// identifiers for photo attachments.
func NewUUIDProvider() PhotoKeyProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}
