package router

// View identifiers of the application's view table.
const (
	ViewList    = "DomainList"
	ViewDetails = "DomainDetails"
)

// ParamDomainName is the capture name of the details route.
const ParamDomainName = "domainName"

// Route names of the view table.
const (
	RouteHome    = "Home"
	RouteDetails = "Details"
)

// Route names of the API table.
const (
	RouteCheckDomain  = "CheckDomain"
	RouteCheckDomains = "CheckDomains"
	RouteHealth       = "Health"
)

// ViewTable returns the application's view routes: the domain list at "/" and the
// details view at "/details/:domainName", in that order.
func ViewTable() *Table {
	return MustTable(
		Route{Name: RouteHome, Pattern: "/", View: ViewList},
		Route{Name: RouteDetails, Pattern: "/details/:" + ParamDomainName, View: ViewDetails},
	)
}

// APITable returns the routes of the domain check API.
func APITable() *Table {
	return MustTable(
		Route{Name: RouteCheckDomain, Pattern: "/check_domain/:domain"},
		Route{Name: RouteCheckDomains, Pattern: "/check_domains"},
		Route{Name: RouteHealth, Pattern: "/healthz"},
	)
}
