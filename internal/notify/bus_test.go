package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTenantChannel(t *testing.T) {
	assert.Equal(t, "company-1-mainchannel", TenantChannel(1))
	assert.Equal(t, "company-42-mainchannel", TenantChannel(42))
}
