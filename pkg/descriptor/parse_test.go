package descriptor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sayHello = "func SayHello(Greeting string) (Answer string)\ntag t1"

func TestParse(t *testing.T) {
	t.Run("say hello descriptor", func(t *testing.T) {
		iface, err := Parse(sayHello)
		require.NoError(t, err)
		require.Equal(t, "t1", iface.Tag)
		require.Len(t, iface.Functions, 1)

		f, ok := iface.Function("SayHello")
		require.True(t, ok)
		require.Equal(t, []Param{{Name: "Greeting", Type: "string"}}, f.Params)
		require.Equal(t, []Param{{Name: "Answer", Type: "string"}}, f.Returns)
		require.Equal(t, "SayHello(string)(string)", f.Signature())
	})

	t.Run("full descriptor with comments, properties and composite types", func(t *testing.T) {
		iface, err := Parse(`
# weather station
function Forecast(Days int, Where map[string]float64) (Temps []float64, Ok bool)
func Reset()
property Mood: string
property   Position :  [2]float64
tag station_7
`)
		require.NoError(t, err)
		require.Len(t, iface.Functions, 2)
		require.Len(t, iface.Properties, 2)

		f, ok := iface.Function("Forecast")
		require.True(t, ok)
		require.Equal(t, "Forecast(int,map[string]float64)([]float64,bool)", f.Signature())

		reset, ok := iface.Function("Reset")
		require.True(t, ok)
		require.Empty(t, reset.Params)
		require.Empty(t, reset.Returns)

		p, ok := iface.Property("Position")
		require.True(t, ok)
		require.Equal(t, "[2]float64", p.Type)
	})

	t.Run("canonical text parses back to the same interface", func(t *testing.T) {
		iface, err := Parse("function A(x int, y []string) (z bool)\nproperty P: string\ntag k")
		require.NoError(t, err)

		again, err := Parse(iface.String())
		require.NoError(t, err)
		require.True(t, iface.Equal(again))
		require.Equal(t, "func A(x int, y []string) (z bool)\nproperty P: string\ntag k", iface.String())
	})

	t.Run("invalid descriptors", func(t *testing.T) {
		for name, text := range map[string]string{
			"empty":              "",
			"only a tag":         "tag t1",
			"unknown keyword":    "method Foo()",
			"missing params":     "func Foo",
			"unterminated":       "func Foo(a int",
			"untyped param":      "func Foo(a)",
			"bad name":           "func 1Foo()",
			"trailing garbage":   "func Foo() (a int) extra",
			"duplicate member":   "func Foo()\nproperty Foo: int",
			"two tags":           "func Foo()\ntag a\ntag b",
			"spaced tag":         "func Foo()\ntag a b",
			"property no colon":  "property Mood string",
			"property no type":   "property Mood:",
			"unbalanced bracket": "func Foo(a map[string)",
		} {
			t.Run(name, func(t *testing.T) {
				require.Error(t, Check(text))
			})
		}
	})

	t.Run("syntax errors point at the line", func(t *testing.T) {
		_, err := Parse("func Ok()\n\nfunc Broken(")
		var syntaxErr *SyntaxError
		require.ErrorAs(t, err, &syntaxErr)
		require.Equal(t, 3, syntaxErr.Line)
	})
}

func TestCompatibility(t *testing.T) {
	parse := func(text string) *Interface {
		iface, err := Parse(text)
		require.NoError(t, err)
		return iface
	}

	base := parse("func SayHello(Greeting string) (Answer string)\nproperty Mood: string\ntag t1")

	t.Run("parameter names do not matter", func(t *testing.T) {
		require.True(t, base.Compatible(parse("func SayHello(G string) (A string)\ntag t1")))
	})

	t.Run("one shared property is enough", func(t *testing.T) {
		require.True(t, base.Compatible(parse("property Mood: string\ntag t1")))
	})

	t.Run("tags must match", func(t *testing.T) {
		require.False(t, base.Compatible(parse(sayHello[:len(sayHello)-2]+"t2")))
	})

	t.Run("types must match", func(t *testing.T) {
		require.False(t, base.Compatible(parse("func SayHello(Greeting []byte) (Answer string)\ntag t1")))
	})

	t.Run("compatible interfaces share topics", func(t *testing.T) {
		other := parse("func SayHello(G string) (A string)\ntag t1")
		topic, ok := base.FunctionTopic("SayHello")
		require.True(t, ok)
		require.Contains(t, other.Topics(), topic)
		require.Equal(t, "tvio/t1/func/SayHello(string)(string)", topic)

		prop, ok := base.PropertyTopic("Mood")
		require.True(t, ok)
		require.Equal(t, "tvio/t1/prop/Mood:string", prop)
		require.Equal(t, []string{topic, prop}, base.Topics())
	})

	t.Run("untagged interfaces get a placeholder segment", func(t *testing.T) {
		topics := parse("func F()").Topics()
		require.Equal(t, []string{"tvio/-/func/F()()"}, topics)
	})
}
