// Package model defines the lookup results cached by ipcache and the
// canonical key forms under which they are stored.
package model

// IPResult is the resolved information for a single IP address as returned
// by the upstream lookup API.
type IPResult struct {
	IP       string `json:"ip"`
	Hostname string `json:"hostname,omitempty"`
	City     string `json:"city,omitempty"`
	Region   string `json:"region,omitempty"`
	Country  string `json:"country,omitempty"`
	Loc      string `json:"loc,omitempty"`
	Org      string `json:"org,omitempty"`
	Postal   string `json:"postal,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	Anycast  bool   `json:"anycast,omitempty"`

	// Bogon is set for addresses that are never routed on the public
	// internet. Such results are produced locally, never by the upstream.
	Bogon bool `json:"bogon,omitempty"`
}

// Prefix is a single announced network of an autonomous system.
type Prefix struct {
	Netblock string `json:"netblock"`
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	Country  string `json:"country,omitempty"`
}

// ASNResult is the resolved information for an autonomous system.
type ASNResult struct {
	ASN       string   `json:"asn"`
	Name      string   `json:"name,omitempty"`
	Country   string   `json:"country,omitempty"`
	Allocated string   `json:"allocated,omitempty"`
	Registry  string   `json:"registry,omitempty"`
	Domain    string   `json:"domain,omitempty"`
	NumIPs    int64    `json:"num_ips,omitempty"`
	Type      string   `json:"type,omitempty"`
	Prefixes  []Prefix `json:"prefixes,omitempty"`
	Prefixes6 []Prefix `json:"prefixes6,omitempty"`
}
