// Package fallback posts action results straight to the backend when no
// in-process consumer is available to receive them.
package fallback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"courier/service/action"
	"courier/service/delivery"
	"courier/service/metrics"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 10 * time.Second

	replyPath    = "/api/messages"
	markReadPath = "/api/messages/mark-read"
	authHeader   = "X-Auth-Token"
	replyTitle   = "Reply from notification"
)

var (
	ErrMissingCredentials = errors.New("missing apiUrl or authToken")
	ErrMissingMessageID   = errors.New("missing message id")
	ErrUnknownAction      = errors.New("unknown action")
)

// Status is the short user-facing outcome of a fallback delivery.
type Status string

const (
	StatusReplySent        Status = "Reply sent"
	StatusReplyFailed      Status = "Failed to send reply"
	StatusMarkedRead       Status = "Marked as read"
	StatusMarkReadFailed   Status = "Failed to mark as read"
	StatusMissingMessageID Status = "Cannot mark as read - missing message ID"
	StatusDismissed        Status = "Dismissed"
)

func errorStatus(err error) Status {
	return Status("Error: " + err.Error())
}

// Reporter shows a status to the user.
type Reporter interface {
	Report(ctx context.Context, status Status)
}

type Options struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Reporter       Reporter
	Logger         *slog.Logger
	// Transport overrides the dialing transport, mainly for tests.
	Transport http.RoundTripper
}

type Client struct {
	http     *http.Client
	reporter Reporter
	logger   *slog.Logger
}

func New(opts Options) *Client {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	transport := opts.Transport
	if transport == nil {
		dialer := &net.Dialer{Timeout: opts.ConnectTimeout}
		transport = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   opts.ConnectTimeout,
			ResponseHeaderTimeout: opts.ReadTimeout,
			MaxIdleConns:          4,
			IdleConnTimeout:       30 * time.Second,
		}
	}

	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   opts.ConnectTimeout + opts.ReadTimeout,
		},
		reporter: opts.Reporter,
		logger:   opts.Logger,
	}
}

// Replay delivers the result and reports its status. It satisfies
// delivery.Fallback.
func (c *Client) Replay(ctx context.Context, result delivery.ActionResult) {
	status, err := c.Deliver(ctx, result)
	if err != nil {
		c.logger.Warn("Fallback delivery failed",
			"action", result.ActionID,
			"notification_id", result.NotificationID,
			"permanent", delivery.IsPermanent(err),
			"error", err)
	}
	if status != "" && c.reporter != nil {
		c.reporter.Report(ctx, status)
	}
}

// Deliver performs the network call for a single action result. There is no
// retry: a failed call is reported and forgotten.
func (c *Client) Deliver(ctx context.Context, result delivery.ActionResult) (Status, error) {
	switch result.ActionID {
	case action.Reply, action.MarkRead:
		if !result.HasFallbackCredentials() {
			c.logger.Warn("Missing fallback credentials", "action", result.ActionID)
			metrics.FallbackRequestsTotal.WithLabelValues(result.ActionID, "invalid").Inc()
			return "", ErrMissingCredentials
		}
		if result.ActionID == action.Reply {
			return c.reply(ctx, result)
		}
		return c.markRead(ctx, result)
	case action.Dismiss:
		c.logger.Debug("Dismiss needs no backend call", "notification_id", result.NotificationID)
		metrics.FallbackRequestsTotal.WithLabelValues(action.Dismiss, "skipped").Inc()
		return StatusDismissed, nil
	default:
		c.logger.Warn("Unknown fallback action", "action", result.ActionID)
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, result.ActionID)
	}
}

type replyMessage struct {
	SenderID          string `json:"sender_id,omitempty"`
	RecipientID       string `json:"recipient_id,omitempty"`
	CommodityID       string `json:"commodity_id,omitempty"`
	OfferID           string `json:"offer_id,omitempty"`
	Text              string `json:"text"`
	NotificationTitle string `json:"notificationTitle"`
}

type replyRequest struct {
	Message replyMessage `json:"message"`
}

type markReadRequest struct {
	MessageID string `json:"messageId"`
}

// The reply is sent on behalf of the recipient, so sender and recipient swap.
func (c *Client) reply(ctx context.Context, result delivery.ActionResult) (Status, error) {
	body := replyRequest{Message: replyMessage{
		SenderID:          result.Extra("recipientId"),
		RecipientID:       result.Extra("senderId"),
		CommodityID:       result.Extra("commodityId"),
		OfferID:           result.Extra("offerId"),
		Text:              result.ReplyText,
		NotificationTitle: replyTitle,
	}}

	err := c.post(ctx, result, replyPath, body)
	switch {
	case err == nil:
		return StatusReplySent, nil
	case delivery.IsPermanent(err):
		return StatusReplyFailed, err
	default:
		return errorStatus(err), err
	}
}

func (c *Client) markRead(ctx context.Context, result delivery.ActionResult) (Status, error) {
	messageID := result.Extra(delivery.KeyMessageID)
	if messageID == "" {
		c.logger.Warn("Cannot mark as read without a message id", "notification_id", result.NotificationID)
		metrics.FallbackRequestsTotal.WithLabelValues(action.MarkRead, "invalid").Inc()
		return StatusMissingMessageID, ErrMissingMessageID
	}

	err := c.post(ctx, result, markReadPath, markReadRequest{MessageID: messageID})
	switch {
	case err == nil:
		return StatusMarkedRead, nil
	case delivery.IsPermanent(err):
		return StatusMarkReadFailed, err
	default:
		return errorStatus(err), err
	}
}

func (c *Client) post(ctx context.Context, result delivery.ActionResult, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	url := strings.TrimRight(result.APIURL(), "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		metrics.FallbackRequestsTotal.WithLabelValues(result.ActionID, "error").Inc()
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(authHeader, result.AuthToken())

	c.logger.Debug("Sending fallback request", "action", result.ActionID, "url", url)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.FallbackRequestsTotal.WithLabelValues(result.ActionID, "error").Inc()
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.FallbackRequestsTotal.WithLabelValues(result.ActionID, "rejected").Inc()
		return delivery.NewPermanentError(result.ActionID, fmt.Errorf("server returned %d", resp.StatusCode))
	}

	metrics.FallbackRequestsTotal.WithLabelValues(result.ActionID, "ok").Inc()
	c.logger.Debug("Fallback request accepted", "action", result.ActionID, "status", resp.StatusCode)
	return nil
}

// LogReporter writes statuses to the log when there is no user-facing surface.
type LogReporter struct {
	Logger *slog.Logger
}

func (r LogReporter) Report(_ context.Context, status Status) {
	if r.Logger == nil {
		return
	}
	r.Logger.Info("Action status", "status", string(status))
}
