// internal/delivery/outbound.go
package delivery

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"

	"guestflow-engine/internal/common/errors"
	"guestflow-engine/internal/common/logger"
	"guestflow-engine/internal/models"
)

// SESService and SNSService mirror the AWS client surfaces used here so
// tests can substitute them.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Sender pushes rendered messages through the outbound channels. The in-app
// channel never reaches here; dispatch routes it to the conversation store.
type Sender struct {
	ses       SESService
	sns       SNSService
	fromEmail string
	logger    logger.Logger
}

func NewSender(sesClient SESService, snsClient SNSService, fromEmail string, log logger.Logger) *Sender {
	return &Sender{
		ses:       sesClient,
		sns:       snsClient,
		fromEmail: fromEmail,
		logger:    log.WithFields(map[string]interface{}{"component": "delivery"}),
	}
}

// Send delivers msg to the recipient named in the record's payload and
// returns a message identifier.
func (s *Sender) Send(ctx context.Context, rec models.ScheduleRecord, msg models.RenderedMessage) (string, error) {
	switch rec.Channel {
	case models.ChannelEmail:
		return s.sendEmail(ctx, rec, msg)
	case models.ChannelSMS:
		return s.sendSMS(ctx, rec, msg)
	}
	return "", errors.NewDeliveryFailedError(rec.Channel, fmt.Errorf("unsupported channel"))
}

func (s *Sender) sendEmail(ctx context.Context, rec models.ScheduleRecord, msg models.RenderedMessage) (string, error) {
	to, _ := rec.Payload["guestEmail"].(string)
	if to == "" {
		return "", errors.NewDeliveryFailedError(rec.Channel, fmt.Errorf("payload has no guestEmail"))
	}

	out, err := s.ses.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &sestypes.Destination{
			ToAddresses: []string{to},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(msg.Subject)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(msg.Body)},
				Html: &sestypes.Content{Data: aws.String(msg.Body)},
			},
		},
		Source: aws.String(s.fromEmail),
	})
	if err != nil {
		return "", errors.NewDeliveryFailedError(rec.Channel, err)
	}

	if out.MessageId != nil {
		return *out.MessageId, nil
	}
	return uuid.New().String(), nil
}

func (s *Sender) sendSMS(ctx context.Context, rec models.ScheduleRecord, msg models.RenderedMessage) (string, error) {
	to, _ := rec.Payload["guestPhone"].(string)
	if to == "" {
		return "", errors.NewDeliveryFailedError(rec.Channel, fmt.Errorf("payload has no guestPhone"))
	}

	out, err := s.sns.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(msg.Body),
	})
	if err != nil {
		return "", errors.NewDeliveryFailedError(rec.Channel, err)
	}

	if out.MessageId != nil {
		return *out.MessageId, nil
	}
	return uuid.New().String(), nil
}
