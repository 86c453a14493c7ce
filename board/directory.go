package board

// Directory is the person side table of a project. Lookups are by exact
// name; a name that does not resolve is a normal outcome.
type Directory struct {
	people []Person
	byName map[string]int
}

func NewDirectory(people []Person) *Directory {
	d := &Directory{
		people: people,
		byName: make(map[string]int, len(people)),
	}
	for i, p := range people {
		if _, ok := d.byName[p.Name]; !ok {
			d.byName[p.Name] = i
		}
	}
	return d
}

// Lookup returns the first person named name. A nil Directory resolves
// nothing.
func (d *Directory) Lookup(name string) (Person, bool) {
	if d == nil || name == "" {
		return Person{}, false
	}
	i, ok := d.byName[name]
	if !ok {
		return Person{}, false
	}
	return d.people[i], true
}

// People returns the directory entries in stored order.
func (d *Directory) People() []Person {
	if d == nil {
		return []Person{}
	}
	out := make([]Person, len(d.people))
	copy(out, d.people)
	return out
}
