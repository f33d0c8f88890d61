package app

import "errors"

var (
	ErrNotOrderOwner     = errors.New("order belongs to another user")
	ErrShopRoleRequired  = errors.New("a shop-role account is required")
	ErrShopNotAccepting  = errors.New("the shop is not accepting orders")
	ErrQuantityRequired  = errors.New("quantity must be at least 1")
	ErrCancelNotAllowed  = errors.New("only the order owner or a shop account may cancel")
)
