package domain

// Attachment is a single file attached to an outgoing email.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

type EmailMessage struct {
	To         string `validate:"required,email"`
	Subject    string `validate:"required"`
	Body       string
	Attachment *Attachment
}

func (m EmailMessage) Validate() error {
	return ValidateStruct("email message", m)
}
