package persistence

import (
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `<?xml version="1.0" encoding="UTF-8"?>
<persistence version="2.1"
    xmlns="http://xmlns.jcp.org/xml/ns/persistence"
    xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
  <persistence-unit name="primary" transaction-type="JTA">
    <jta-data-source>
      java:jboss/datasources/ShopDS
    </jta-data-source>
    <properties>
      <property name="hibernate.dialect" value="org.hibernate.dialect.H2Dialect"/>
      <property name="hibernate.hbm2ddl.auto" value="update"/>
    </properties>
  </persistence-unit>
  <persistence-unit name="reporting">
    <non-jta-data-source>java:comp/env/jdbc/Reports</non-jta-data-source>
  </persistence-unit>
</persistence>
`

func TestParse(t *testing.T) {
	d, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, d.Units, 2)

	u, err := d.Primary()
	require.NoError(t, err)
	assert.Equal(t, "primary", u.Name)
	assert.Equal(t, "JTA", u.TransactionType)
	assert.Equal(t, "java:jboss/datasources/ShopDS", u.DataSource())

	v, ok := u.Property("hibernate.dialect")
	assert.True(t, ok)
	assert.Equal(t, "org.hibernate.dialect.H2Dialect", v)
	_, ok = u.Property("hibernate.show_sql")
	assert.False(t, ok)

	assert.Equal(t, "java:comp/env/jdbc/Reports", d.Units[1].DataSource())
}

func TestRead_FromBillyFS(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, DefaultMember, []byte(sample), 0o644))

	d, err := Read(fs, DefaultMember)
	require.NoError(t, err)
	u, err := d.Primary()
	require.NoError(t, err)
	assert.Equal(t, "primary", u.Name)

	_, err = Read(fs, "missing.xml")
	assert.Error(t, err)
}

func TestPrimary_NoUnits(t *testing.T) {
	d, err := Parse(strings.NewReader(`<persistence/>`))
	require.NoError(t, err)
	_, err = d.Primary()
	assert.ErrorIs(t, err, ErrNoUnit)
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse(strings.NewReader(`<persistence><persistence-unit`))
	assert.Error(t, err)
}

func TestDataSourceName(t *testing.T) {
	assert.Equal(t, "ShopDS", DataSourceName("java:jboss/datasources/ShopDS"))
	assert.Equal(t, "Reports", DataSourceName("java:comp/env/jdbc/Reports/"))
	assert.Equal(t, "AppDS", DataSourceName("java:AppDS"))
	assert.Equal(t, "plain", DataSourceName("plain"))
}
