package service

import (
	"errors"

	"github.com/digkill/ChannelPassBot/internal/catalog"
)

var (
	ErrUnauthorized   = errors.New("actor is not an operator")
	ErrNotFound       = errors.New("not found")
	ErrAlreadyDecided = errors.New("claim already decided")
	ErrDeliveryFailed = errors.New("message delivery failed")
	ErrConfigMissing  = catalog.ErrConfigMissing
	ErrClaimPending   = errors.New("a payment claim is already pending")
	ErrEmptyReference = errors.New("payment reference is empty")
	ErrInvalidAction  = errors.New("invalid action")
)
