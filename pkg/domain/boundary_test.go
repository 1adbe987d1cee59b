package domain

import (
	"testing"

	"estatecore/testutil"
)

func TestDomainStaysFreeOfAdapters(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImport, "domain must not depend on internal packages")
	testutil.AssertNoDirectImports(t, ".", testutil.InfrastructureImport, "domain must not depend on drivers or SDKs")
}
