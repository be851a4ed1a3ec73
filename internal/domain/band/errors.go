package band

import "errors"

var ErrInvalidConfig = errors.New("invalid band config")
