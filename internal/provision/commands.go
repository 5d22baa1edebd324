package provision

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ModuleName is the JBoss module the driver jar is installed as.
const ModuleName = "org.postgresql"

const (
	moduleDependencies = "javax.api,javax.transaction.api"
	xaDataSourceClass  = "org.postgresql.xa.PGXADataSource"
)

// moduleDescriptor is where `module add` leaves its module.xml.
func moduleDescriptor(jbossHome string) string {
	parts := append([]string{jbossHome, "modules"}, strings.Split(ModuleName, ".")...)
	return filepath.Join(append(parts, "main", "module.xml")...)
}

func moduleAddCommand(jar string) string {
	return fmt.Sprintf("module add --name=%s --resources=%s --dependencies=%s", ModuleName, jar, moduleDependencies)
}

func driverAddress(name string) string {
	return "/subsystem=datasources/jdbc-driver=" + name
}

func driverAddCommand(name string) string {
	return fmt.Sprintf("%s:add(driver-name=%s,driver-module-name=%s,driver-xa-datasource-class-name=%s)",
		driverAddress(name), name, ModuleName, xaDataSourceClass)
}

func datasourceAddress(name string) string {
	return "/subsystem=datasources/data-source=" + name
}

// datasourceAddCommand uses the data-source command so that WildFly fills in
// pool defaults. Credentials stay ${env.*} expressions resolved on the dyno.
func datasourceAddCommand(s settings) string {
	args := []string{
		"--name=" + s.name,
		"--jndi-name=" + s.jndiName,
		"--driver-name=" + s.driverName,
		"--connection-url=" + s.connectionURL,
	}
	if s.userName != "" {
		args = append(args, "--user-name="+s.userName)
	}
	if s.password != "" {
		args = append(args, "--password="+s.password)
	}
	return "data-source add " + strings.Join(args, " ")
}

func readResource(address string) string {
	return address + ":read-resource"
}
