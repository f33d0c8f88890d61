package app

import "errors"

var (
	ErrShopRoleRequired = errors.New("a shop-role account is required")
	ErrShopRequired     = errors.New("the account has no shop yet")
	ErrNameRequired     = errors.New("name is required")
	ErrObjectStoreOff   = errors.New("object storage is not configured")
	ErrNoPriceList      = errors.New("no price list has been uploaded")
)
