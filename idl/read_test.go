package idl_test

import (
	"strings"
	"testing"

	"git.sr.ht/~varlinkrt/zlink-go/idl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const serviceRaw = `# The Varlink Service Interface is provided by every varlink service. It
# describes the service and the interfaces it implements.
interface org.varlink.service

# Get a list of all the interfaces a service provides and information
# about the implementation.
method GetInfo() -> (
  vendor: string,
  product: string,
  version: string,
  url: string,
  interfaces: []string
)

# Get the description of an interface that is implemented by this service.
method GetInterfaceDescription(interface: string) -> (description: string)

# The requested interface was not found.
error InterfaceNotFound (interface: string)

# The requested method was not found
error MethodNotFound (method: string)
`

func TestReadServiceInterface(t *testing.T) {
	iface, err := idl.Read(strings.NewReader(serviceRaw))
	require.NoError(t, err)

	assert.Equal(t, "org.varlink.service", iface.Name)
	assert.Contains(t, iface.Doc, "provided by every varlink service")

	getInfo, ok := iface.Method("GetInfo")
	require.True(t, ok)
	assert.Empty(t, getInfo.In)
	require.Len(t, getInfo.Out, 5)
	assert.Equal(t, "vendor", getInfo.Out[0].Name)
	assert.Equal(t, idl.TypeString, getInfo.Out[0].Type)
	assert.Equal(t, "interfaces", getInfo.Out[4].Name)
	assert.Equal(t, idl.KindArray, getInfo.Out[4].Type.Kind)
	assert.Equal(t, idl.TypeString, *getInfo.Out[4].Type.Inner)

	getDesc, ok := iface.Method("GetInterfaceDescription")
	require.True(t, ok)
	require.Len(t, getDesc.In, 1)
	assert.Equal(t, "interface", getDesc.In[0].Name)

	assert.ElementsMatch(t, []string{"InterfaceNotFound", "MethodNotFound"}, iface.ErrorNames())
	assert.True(t, iface.HasError("InterfaceNotFound"))
	assert.False(t, iface.HasError("Nonexistent"))
}

const exampleRaw = `# Interface to jump a spacecraft to another point in space.
interface org.example.ftl

# The current state of the FTL drive and the amount of
# fuel available to jump.
type DriveCondition (
  state: (idle, spooling, busy),
  tylium_level: int
)

type Coordinate (
  longitude: float,
  latitude: float,
  distance: int
)

# Monitor the drive. The method will reply with an update
# whenever the drive's state changes
method Monitor() -> (condition: DriveCondition)

method CalculateConfiguration(
  current: Coordinate,
  target: Coordinate
) -> (speed: int)

error NotEnoughEnergy ()

error ParameterOutOfRange (field: string)
`

func TestReadExampleInterface(t *testing.T) {
	iface, err := idl.Read(strings.NewReader(exampleRaw))
	require.NoError(t, err)

	drive, ok := iface.Type("DriveCondition")
	require.True(t, ok)
	require.Len(t, drive.Fields, 2)
	assert.Equal(t, "state", drive.Fields[0].Name)
	assert.Equal(t, idl.KindEnum, drive.Fields[0].Type.Kind)
	assert.Equal(t, []string{"idle", "spooling", "busy"}, drive.Fields[0].Type.Enum)

	monitor, ok := iface.Method("Monitor")
	require.True(t, ok)
	assert.Contains(t, monitor.Doc, "Monitor the drive")
	require.Len(t, monitor.Out, 1)
	assert.Equal(t, idl.KindName, monitor.Out[0].Type.Kind)
	assert.Equal(t, "DriveCondition", monitor.Out[0].Type.Name)

	calc, ok := iface.Method("CalculateConfiguration")
	require.True(t, ok)
	require.Len(t, calc.In, 2)
	assert.Equal(t, "Coordinate", calc.In[0].Type.Name)

	require.Len(t, iface.Errors, 2)
	assert.Equal(t, "NotEnoughEnergy", iface.Errors[0].Name)
	assert.Empty(t, iface.Errors[0].Fields)
	assert.Equal(t, "ParameterOutOfRange", iface.Errors[1].Name)
}

func TestWriteRoundTripsThroughRead(t *testing.T) {
	iface, err := idl.Read(strings.NewReader(exampleRaw))
	require.NoError(t, err)

	rendered := iface.String()
	reparsed, err := idl.Read(strings.NewReader(rendered))
	require.NoError(t, err)

	assert.Equal(t, iface, reparsed)
}

func TestReadRejectsMalformedInterface(t *testing.T) {
	_, err := idl.Read(strings.NewReader("interface org.example\nmethod Foo(bar string) -> ()\n"))
	assert.Error(t, err)
}
