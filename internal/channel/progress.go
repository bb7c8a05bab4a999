package channel

import "io"

// progressCounter converts bytes transferred into percent complete and
// reports only changes. It holds back 100 until the transport confirms
// the upload, which the caller signals by returning.
type progressCounter struct {
	total  int64
	done   int64
	last   int
	report func(int)
}

func newProgressCounter(total int64, report func(int)) *progressCounter {
	return &progressCounter{total: total, last: -1, report: report}
}

func (p *progressCounter) add(n int) {
	p.done += int64(n)
	if p.report == nil || p.total <= 0 {
		return
	}
	pct := min(int(p.done*100/p.total), 99)
	if pct != p.last {
		p.last = pct
		p.report(pct)
	}
}

// progressReader reports progress as the transport reads the body.
type progressReader struct {
	r io.Reader
	*progressCounter
}

func newProgressReader(r io.Reader, total int64, report func(int)) *progressReader {
	return &progressReader{r: r, progressCounter: newProgressCounter(total, report)}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.add(n)
	return n, err
}
