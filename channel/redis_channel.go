package channel

import (
	"context"
	"encoding/json"
	"fmt"

	rd "github.com/go-redis/redis/v9"
	"github.com/leadflowhq/leadflow/logger"
	"go.uber.org/zap"
)

const emailQueue = "outbound:email"
const smsQueue = "outbound:sms"

type outboundMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

// RedisChannel pushes outbound messages onto namespaced redis lists consumed
// by the delivery workers.
type RedisChannel struct {
	redisClient rd.UniversalClient
	namespace   string
}

var _ Channel = new(RedisChannel)

func NewRedisChannel(redisClient rd.UniversalClient, namespace string) *RedisChannel {
	return &RedisChannel{
		redisClient: redisClient,
		namespace:   namespace,
	}
}

func (c *RedisChannel) SendEmail(ctx context.Context, to string, subject string, body string) error {
	return c.push(ctx, emailQueue, outboundMessage{To: to, Subject: subject, Body: body})
}

func (c *RedisChannel) SendSMS(ctx context.Context, to string, body string) error {
	return c.push(ctx, smsQueue, outboundMessage{To: to, Body: body})
}

func (c *RedisChannel) push(ctx context.Context, queueName string, msg outboundMessage) error {
	queueName = fmt.Sprintf("%s:%s", c.namespace, queueName)
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	err = c.redisClient.LPush(ctx, queueName, payload).Err()
	if err != nil {
		logger.Error("error while push to outbound queue", zap.String("queue", queueName), zap.Error(err))
		return err
	}
	return nil
}
