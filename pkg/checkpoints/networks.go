package checkpoints

import (
	"fmt"
	"sort"

	"github.com/bsv-blockchain/go-sdk/chainhash"
)

// Network holds the compiled-in checkpoint parameters of one chain.
type Network struct {
	Name        string
	GenesisHash chainhash.Hash
	Checkpoints []Checkpoint

	// Bypass is set for alternate and test networks, which carry no checkpoints.
	Bypass bool
}

var networks = map[string]*Network{}

func init() {
	mainGenesis := mustHash("000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f")
	register(&Network{
		Name:        "main",
		GenesisHash: mainGenesis,
		Checkpoints: []Checkpoint{
			{0, mainGenesis},
			{11111, mustHash("0000000069e244f73d78e8fd29ba2fd2ed618bd6fa2ee92559f542fdb26e7c1d")},
			{33333, mustHash("000000002dd5588a74784eaa7ab0507a18ad16a236e7b1ce69f00d7ddfb5d0a6")},
			{74000, mustHash("0000000000573993a3c9e41ce34471c079dcf5f52a0e824a81e7f953b8661a20")},
			{105000, mustHash("00000000000291ce28027faea320c8d2b054b2e0fe44a773f3eefb151d6bdc97")},
			{134444, mustHash("00000000000005b12ffd4cd315cd34ffd4a594f430ac814c91184a0d42d2b0fe")},
			{168000, mustHash("000000000000099e61ea72015e79632f216fe6cb33d7899acb35b75c8303b763")},
			{193000, mustHash("000000000000059f452a5f7340de6682a977387c17010ff6e6c3bd83ca8b1317")},
			{210000, mustHash("000000000000048b95347e83192f69cf0366076336c639f9b7228e9ba171342e")},
			{216116, mustHash("00000000000001b4f4b433e81ee46494af945cf96014816a4e2370f11b23df4e")},
			{225430, mustHash("00000000000001c108384350f74090433e7fcf79a606b8e797f065b130575932")},
			{250000, mustHash("000000000000003887df1f29024b06fc2200b55f8af8f35453d7be294df2d214")},
			{267300, mustHash("000000000000000a83fbd660e918f218bf37edd92b748ad940483c7c116179ac")},
			{279000, mustHash("0000000000000001ae8c72a0b0c301f67e3afca10e819efa9041e458e9bd7e40")},
			{300255, mustHash("0000000000000000162804527c6e9b9f0563a280525f9d08c12041def0a0f3b2")},
			{319400, mustHash("000000000000000021c6052e9becade189495d1c539aa37c58917305fd15f13b")},
			{343185, mustHash("0000000000000000072b8bf361d01a6ba7d445dd024203fafc78768ed4368554")},
			{352940, mustHash("000000000000000010755df42dba556bb72be6a32f3ce0b6941ce4430152c9ff")},
			{382320, mustHash("00000000000000000a8dc6ed5b133d0eb2fd6af56203e4159789b092defd8ab2")},
		},
	})

	// Testnets have no checkpoints
	register(&Network{
		Name:        "test",
		GenesisHash: mustHash("000000000933ea01ad0ee984209779baaec3ced90fa3f408719526f8d77f4943"),
		Bypass:      true,
	})
	register(&Network{
		Name:        "regtest",
		GenesisHash: mustHash("0f9188f13cb7b2c71f2a335e3a4fc328bf5beb436012afca590b1a11466e2206"),
		Bypass:      true,
	})
}

func register(n *Network) {
	// Fail at startup rather than at query time.
	if err := validate(n.GenesisHash, n.Checkpoints); err != nil {
		panic(fmt.Sprintf("invalid checkpoints for network %s: %v", n.Name, err))
	}
	networks[n.Name] = n
}

func mustHash(s string) chainhash.Hash {
	h, err := chainhash.NewHashFromHex(s)
	if err != nil {
		panic(fmt.Sprintf("invalid checkpoint hash %q: %v", s, err))
	}
	return *h
}

// LookupNetwork returns a copy of the compiled-in parameters for name.
func LookupNetwork(name string) (Network, error) {
	n, ok := networks[name]
	if !ok {
		return Network{}, fmt.Errorf("%w: %s", ErrUnknownNetwork, name)
	}

	out := *n
	out.Checkpoints = make([]Checkpoint, len(n.Checkpoints))
	copy(out.Checkpoints, n.Checkpoints)
	return out, nil
}

// Networks returns the names of all known networks, sorted.
func Networks() []string {
	names := make([]string, 0, len(networks))
	for name := range networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GenesisHash returns the genesis block hash of the named network.
func GenesisHash(name string) (chainhash.Hash, error) {
	n, err := LookupNetwork(name)
	if err != nil {
		return chainhash.Hash{}, err
	}
	return n.GenesisHash, nil
}

// ForNetwork builds the Registry for the named network. Setting bypass
// disables checkpoints even on networks that define them.
func ForNetwork(name string, bypass bool) (*Registry, error) {
	n, err := LookupNetwork(name)
	if err != nil {
		return nil, err
	}

	return New(Config{
		Genesis:     n.GenesisHash,
		Checkpoints: n.Checkpoints,
		Bypass:      bypass || n.Bypass,
	})
}
