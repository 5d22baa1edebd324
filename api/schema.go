package api

// Datasource describes what a provisioning run installed into WildFly.
// It is printed by `provision --json` and feeds the .profile.d exports.
type Datasource struct {
	// Name of the datasource resource (/subsystem=datasources/data-source=<Name>).
	Name string `json:"name"`
	// JNDIName the application looks the datasource up under.
	JNDIName string `json:"jndi_name"`
	// ConnectionURL, usually an ${env.*} expression resolved at runtime.
	ConnectionURL string `json:"connection_url"`
	Driver        Driver `json:"driver"`
	// Persistence is set when a deployment declared a persistence unit.
	Persistence *Persistence `json:"persistence,omitempty"`
	// Skipped lists the steps that were already in place.
	Skipped []string `json:"skipped,omitempty"`
}

// Driver is the JDBC driver module.
type Driver struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	// Module is the JBoss module name the jar is installed under.
	Module string `json:"module"`
	Jar    string `json:"jar"`
}

// Persistence is what was learned from the deployment's persistence.xml.
type Persistence struct {
	Archive string `json:"archive"`
	Unit    string `json:"unit,omitempty"`
	// Dialect is the value left in the descriptor after patching.
	Dialect string `json:"dialect,omitempty"`
	// Outcome of the dialect patch: no-property, unchanged, rewritten or disabled.
	Outcome string `json:"outcome"`
}
